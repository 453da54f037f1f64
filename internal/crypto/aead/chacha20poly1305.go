package aead

import (
	"encoding/binary"

	"sudoq/internal/crypto/chacha20"
	"sudoq/internal/crypto/poly1305"
)

const (
	NonceSize = 12
	TagSize   = poly1305.TagSize
)

// Seal implements RFC 8439 ChaCha20-Poly1305: derive the one-time Poly1305
// key from the counter-0 block, encrypt with counter 1, authenticate
// aad‖pad16‖ciphertext‖pad16‖le64(|aad|)‖le64(|ct|). Returns ciphertext‖tag.
func Seal(key *[32]byte, nonce *[NonceSize]byte, plaintext, aad []byte) ([]byte, error) {
	c, err := chacha20.New(key[:], nonce[:])
	if err != nil {
		return nil, err
	}

	var polyKey [32]byte
	c.DerivePolyKey(&polyKey)

	out := make([]byte, len(plaintext)+TagSize)
	ciphertext := out[:len(plaintext)]
	c.XORKeyStream(ciphertext, plaintext)

	var tag [TagSize]byte
	computeTag(&tag, &polyKey, ciphertext, aad)
	copy(out[len(plaintext):], tag[:])
	return out, nil
}

// Open verifies record (ciphertext‖tag) and decrypts it into out, which the
// caller provides with len(record)-TagSize bytes. On tag mismatch out is
// zeroed and ErrAuth returned.
func Open(out []byte, key *[32]byte, nonce *[NonceSize]byte, record, aad []byte) error {
	if len(record) < TagSize {
		return ErrShortRecord
	}
	ciphertext := record[:len(record)-TagSize]
	receivedTag := record[len(record)-TagSize:]

	c, err := chacha20.New(key[:], nonce[:])
	if err != nil {
		return err
	}

	var polyKey [32]byte
	c.DerivePolyKey(&polyKey)

	var tag [TagSize]byte
	computeTag(&tag, &polyKey, ciphertext, aad)

	if !poly1305.Equal(receivedTag, tag[:]) {
		for i := range out[:len(ciphertext)] {
			out[i] = 0
		}
		return ErrAuth
	}

	c.XORKeyStream(out[:len(ciphertext)], ciphertext)
	return nil
}

func computeTag(tag *[TagSize]byte, polyKey *[32]byte, ciphertext, aad []byte) {
	var pad [16]byte
	m := poly1305.New(polyKey)

	if len(aad) > 0 {
		m.Write(aad)
		if rem := len(aad) % 16; rem != 0 {
			m.Write(pad[:16-rem])
		}
	}

	m.Write(ciphertext)
	if rem := len(ciphertext) % 16; rem != 0 {
		m.Write(pad[:16-rem])
	}

	var lenBlock [16]byte
	binary.LittleEndian.PutUint64(lenBlock[0:8], uint64(len(aad)))
	binary.LittleEndian.PutUint64(lenBlock[8:16], uint64(len(ciphertext)))
	m.Write(lenBlock[:])
	m.Sum(tag)
}

// chachaPolyCipher is the session-facing record cipher. The 12-byte nonce is
// implicit: key[0..4] ‖ big-endian counter, so it never travels on the wire.
type chachaPolyCipher struct {
	key [32]byte
}

func NewChaCha20Poly1305(key [32]byte) (Cipher, error) {
	return &chachaPolyCipher{key: key}, nil
}

func (c *chachaPolyCipher) Name() string  { return "chacha20-poly1305" }
func (c *chachaPolyCipher) Overhead() int { return TagSize }

func (c *chachaPolyCipher) nonce(counter uint64) [NonceSize]byte {
	var n [NonceSize]byte
	copy(n[:4], c.key[:4])
	binary.BigEndian.PutUint64(n[4:], counter)
	return n
}

func (c *chachaPolyCipher) Seal(counter uint64, plaintext []byte) ([]byte, error) {
	n := c.nonce(counter)
	return Seal(&c.key, &n, plaintext, nil)
}

func (c *chachaPolyCipher) Open(counter uint64, record []byte) ([]byte, error) {
	if len(record) < TagSize {
		return nil, ErrShortRecord
	}
	n := c.nonce(counter)
	out := make([]byte, len(record)-TagSize)
	if err := Open(out, &c.key, &n, record, nil); err != nil {
		return nil, err
	}
	return out, nil
}
