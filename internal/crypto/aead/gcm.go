package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
)

// gcmCipher wraps the host AES-128-GCM primitive. GCM has no counter
// convention shared with the peer, so each record carries a fresh random
// nonce: the wire layout is nonce(12) ‖ ciphertext ‖ tag(16).
type gcmCipher struct {
	aead cipher.AEAD
}

func NewAESGCM(key [32]byte) (Cipher, error) {
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &gcmCipher{aead: aead}, nil
}

func (c *gcmCipher) Name() string  { return "aes-128-gcm" }
func (c *gcmCipher) Overhead() int { return NonceSize + c.aead.Overhead() }

func (c *gcmCipher) Seal(counter uint64, plaintext []byte) ([]byte, error) {
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(out[:NonceSize]); err != nil {
		return nil, err
	}
	return c.aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

func (c *gcmCipher) Open(counter uint64, record []byte) ([]byte, error) {
	if len(record) < NonceSize+c.aead.Overhead() {
		return nil, ErrShortRecord
	}
	nonce := record[:NonceSize]
	out, err := c.aead.Open(nil, nonce, record[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuth
	}
	return out, nil
}
