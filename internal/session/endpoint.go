// Package session implements the per-tunnel protocol engine: the AEAD
// framing pipeline shared by both peers, the relay-side session lifecycle,
// and the token registry for the poll transport.
package session

import (
	"encoding/binary"
	"errors"
	"fmt"

	"sudoq/internal/crypto/aead"
	"sudoq/internal/sudoku"
)

const (
	frameHeader = 2
	// MaxRecord is the largest length the 2-byte frame prefix can carry.
	MaxRecord = 0xFFFF
	// MaxPlaintext bounds one frame's payload so its masked form stays
	// well under the codec's output ceiling.
	MaxPlaintext = 16 * 1024
)

var (
	ErrNonceExhausted = errors.New("session: nonce counter exhausted")
	ErrFrameTooLarge  = errors.New("session: frame exceeds plaintext limit")
	ErrClosed         = errors.New("session: closed")
)

// Endpoint is one side of the framed, masked byte pipe. The send and
// receive halves are independent: sendNonce/enc belong to the writer,
// recvNonce/dec/inbuf to the reader. The counters advance strictly
// monotonically; the first frame in each direction uses counter 1.
type Endpoint struct {
	cipher aead.Cipher

	enc       *sudoku.Codec
	sendNonce uint64

	dec       *sudoku.Codec
	recvNonce uint64
	inbuf     []byte
}

func NewEndpoint(key [32]byte, cipherName string, table *sudoku.Table) (*Endpoint, error) {
	cipher, err := aead.New(cipherName, key)
	if err != nil {
		return nil, err
	}
	enc, err := sudoku.NewCodec(table, key[:])
	if err != nil {
		return nil, err
	}
	dec, err := sudoku.NewCodec(table, key[:])
	if err != nil {
		return nil, err
	}
	return &Endpoint{cipher: cipher, enc: enc, dec: dec}, nil
}

// EncodeFrame seals p into one frame and masks it. p must not exceed
// MaxPlaintext; the session reader slices its stream accordingly.
func (e *Endpoint) EncodeFrame(p []byte) ([]byte, error) {
	if len(p) > MaxPlaintext {
		return nil, ErrFrameTooLarge
	}
	if e.sendNonce == ^uint64(0) {
		return nil, ErrNonceExhausted
	}
	e.sendNonce++

	record, err := e.cipher.Seal(e.sendNonce, p)
	if err != nil {
		return nil, err
	}
	if len(record) > MaxRecord {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, frameHeader+len(record))
	binary.BigEndian.PutUint16(frame, uint16(len(record)))
	copy(frame[frameHeader:], record)

	return e.enc.Mask(frame)
}

// Decode unmasks one transport chunk, reassembles frames across chunk
// boundaries and opens every complete frame, returning the concatenated
// plaintext. A partial frame is not an error; it stays buffered until more
// bytes arrive.
func (e *Endpoint) Decode(chunk []byte) ([]byte, error) {
	return e.decodeFrames(e.dec.Unmask(chunk))
}

// decodeFrames consumes unmasked bytes: buffer, slice complete frames,
// open each in arrival order.
func (e *Endpoint) decodeFrames(raw []byte) ([]byte, error) {
	e.inbuf = append(e.inbuf, raw...)

	var out []byte
	for {
		if len(e.inbuf) < frameHeader {
			break
		}
		recordLen := int(binary.BigEndian.Uint16(e.inbuf))
		if len(e.inbuf) < frameHeader+recordLen {
			break
		}
		record := e.inbuf[frameHeader : frameHeader+recordLen]

		if e.recvNonce == ^uint64(0) {
			return out, ErrNonceExhausted
		}
		e.recvNonce++

		plaintext, err := e.cipher.Open(e.recvNonce, record)
		if err != nil {
			return out, fmt.Errorf("frame %d: %w", e.recvNonce, err)
		}
		out = append(out, plaintext...)
		e.inbuf = e.inbuf[frameHeader+recordLen:]
	}

	if len(e.inbuf) == 0 {
		e.inbuf = nil
	}
	return out, nil
}

// SendCounter exposes the last nonce used on the send path.
func (e *Endpoint) SendCounter() uint64 { return e.sendNonce }
