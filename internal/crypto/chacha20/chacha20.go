// Package chacha20 implements the IETF variant of the ChaCha20 stream
// cipher: 256-bit key, 96-bit nonce, 32-bit block counter.
package chacha20

import (
	"encoding/binary"
	"errors"
	"math/bits"
)

const (
	KeySize   = 32
	NonceSize = 12
	BlockSize = 64
)

var (
	ErrKeySize   = errors.New("chacha20: key must be 32 bytes")
	ErrNonceSize = errors.New("chacha20: nonce must be 12 bytes")
)

// "expand 32-byte k" as four little-endian words.
var constants = [4]uint32{0x61707865, 0x3320646e, 0x79622d32, 0x6b206574}

type Cipher struct {
	key     [8]uint32
	counter uint32
	nonce   [3]uint32

	// Unused keystream tail from the last partial block.
	buf    [BlockSize]byte
	bufLen int
}

// New loads the cipher state. The block counter starts at 1, matching AEAD
// use where the counter-0 block is reserved for the Poly1305 key.
func New(key, nonce []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	if len(nonce) != NonceSize {
		return nil, ErrNonceSize
	}

	c := &Cipher{counter: 1}
	for i := range c.key {
		c.key[i] = binary.LittleEndian.Uint32(key[i*4:])
	}
	for i := range c.nonce {
		c.nonce[i] = binary.LittleEndian.Uint32(nonce[i*4:])
	}
	return c, nil
}

// SetCounter repositions the keystream at a block boundary, discarding any
// buffered tail.
func (c *Cipher) SetCounter(counter uint32) {
	c.counter = counter
	c.bufLen = 0
}

func quarterRound(a, b, cc, d uint32) (uint32, uint32, uint32, uint32) {
	a += b
	d ^= a
	d = bits.RotateLeft32(d, 16)
	cc += d
	b ^= cc
	b = bits.RotateLeft32(b, 12)
	a += b
	d ^= a
	d = bits.RotateLeft32(d, 8)
	cc += d
	b ^= cc
	b = bits.RotateLeft32(b, 7)
	return a, b, cc, d
}

// Block writes one keystream block and advances the counter.
func (c *Cipher) Block(out *[BlockSize]byte) {
	s0, s1, s2, s3 := constants[0], constants[1], constants[2], constants[3]
	s4, s5, s6, s7 := c.key[0], c.key[1], c.key[2], c.key[3]
	s8, s9, s10, s11 := c.key[4], c.key[5], c.key[6], c.key[7]
	s12 := c.counter
	s13, s14, s15 := c.nonce[0], c.nonce[1], c.nonce[2]

	for i := 0; i < 10; i++ {
		s0, s4, s8, s12 = quarterRound(s0, s4, s8, s12)
		s1, s5, s9, s13 = quarterRound(s1, s5, s9, s13)
		s2, s6, s10, s14 = quarterRound(s2, s6, s10, s14)
		s3, s7, s11, s15 = quarterRound(s3, s7, s11, s15)

		s0, s5, s10, s15 = quarterRound(s0, s5, s10, s15)
		s1, s6, s11, s12 = quarterRound(s1, s6, s11, s12)
		s2, s7, s8, s13 = quarterRound(s2, s7, s8, s13)
		s3, s4, s9, s14 = quarterRound(s3, s4, s9, s14)
	}

	binary.LittleEndian.PutUint32(out[0:], s0+constants[0])
	binary.LittleEndian.PutUint32(out[4:], s1+constants[1])
	binary.LittleEndian.PutUint32(out[8:], s2+constants[2])
	binary.LittleEndian.PutUint32(out[12:], s3+constants[3])
	binary.LittleEndian.PutUint32(out[16:], s4+c.key[0])
	binary.LittleEndian.PutUint32(out[20:], s5+c.key[1])
	binary.LittleEndian.PutUint32(out[24:], s6+c.key[2])
	binary.LittleEndian.PutUint32(out[28:], s7+c.key[3])
	binary.LittleEndian.PutUint32(out[32:], s8+c.key[4])
	binary.LittleEndian.PutUint32(out[36:], s9+c.key[5])
	binary.LittleEndian.PutUint32(out[40:], s10+c.key[6])
	binary.LittleEndian.PutUint32(out[44:], s11+c.key[7])
	binary.LittleEndian.PutUint32(out[48:], s12+c.counter)
	binary.LittleEndian.PutUint32(out[52:], s13+c.nonce[0])
	binary.LittleEndian.PutUint32(out[56:], s14+c.nonce[1])
	binary.LittleEndian.PutUint32(out[60:], s15+c.nonce[2])

	c.counter++
}

// XORKeyStream XORs src into dst. The keystream position carries across
// calls: a partial block leaves its tail buffered for the next call.
func (c *Cipher) XORKeyStream(dst, src []byte) {
	if len(src) == 0 {
		return
	}

	if c.bufLen > 0 {
		tail := c.buf[BlockSize-c.bufLen:]
		if len(src) < len(tail) {
			tail = tail[:len(src)]
		}
		for i := range tail {
			dst[i] = src[i] ^ tail[i]
		}
		c.bufLen -= len(tail)
		dst = dst[len(tail):]
		src = src[len(tail):]
	}

	var block [BlockSize]byte
	for len(src) >= BlockSize {
		c.Block(&block)
		for i := 0; i < BlockSize; i++ {
			dst[i] = src[i] ^ block[i]
		}
		dst = dst[BlockSize:]
		src = src[BlockSize:]
	}

	if len(src) > 0 {
		c.Block(&c.buf)
		for i := range src {
			dst[i] = src[i] ^ c.buf[i]
		}
		c.bufLen = BlockSize - len(src)
	}
}

// DerivePolyKey produces the one-time Poly1305 key: the first 32 bytes of
// the counter-0 block. The counter is left at 1 for the payload keystream.
func (c *Cipher) DerivePolyKey(out *[32]byte) {
	c.counter = 0
	c.bufLen = 0

	var block [BlockSize]byte
	c.Block(&block)
	copy(out[:], block[:32])

	c.counter = 1
}
