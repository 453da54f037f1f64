package aead

// noneCipher is a passthrough used when the obfuscation layer alone is
// wanted. Frames carry the plaintext verbatim.
type noneCipher struct{}

func NewNone(key [32]byte) (Cipher, error) {
	return &noneCipher{}, nil
}

func (c *noneCipher) Name() string  { return "none" }
func (c *noneCipher) Overhead() int { return 0 }

func (c *noneCipher) Seal(counter uint64, plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	copy(out, plaintext)
	return out, nil
}

func (c *noneCipher) Open(counter uint64, record []byte) ([]byte, error) {
	out := make([]byte, len(record))
	copy(out, record)
	return out, nil
}
