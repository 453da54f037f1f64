package conf

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

type Crypto struct {
	Key_   string `yaml:"key"`
	Cipher string `yaml:"cipher"`
	Layout string `yaml:"layout"`

	Key [32]byte `yaml:"-"`
}

func (c *Crypto) setDefaults() {
	if c.Cipher == "" {
		c.Cipher = "chacha20-poly1305"
	}
	if c.Layout == "" {
		c.Layout = "ascii"
	}
	c.Cipher = strings.ToLower(strings.TrimSpace(c.Cipher))
	c.Layout = strings.ToLower(strings.TrimSpace(c.Layout))
}

func (c *Crypto) validate() []error {
	var errors []error

	validCiphers := []string{"none", "aes-128-gcm", "chacha20-poly1305"}
	if !slices.Contains(validCiphers, c.Cipher) {
		errors = append(errors, fmt.Errorf("cipher must be one of: %v", validCiphers))
	}
	validLayouts := []string{"ascii", "entropy"}
	if !slices.Contains(validLayouts, c.Layout) {
		errors = append(errors, fmt.Errorf("layout must be one of: %v", validLayouts))
	}

	if strings.TrimSpace(c.Key_) == "" {
		errors = append(errors, fmt.Errorf("key is required"))
	} else {
		c.Key = DeriveKey(c.Key_)
	}
	return errors
}

// DeriveKey turns the configured key material into the 32-byte session key:
// exactly 64 hex characters decode directly, anything else is hashed.
func DeriveKey(s string) [32]byte {
	s = strings.TrimSpace(s)
	if len(s) == 64 {
		if raw, err := hex.DecodeString(s); err == nil {
			var key [32]byte
			copy(key[:], raw)
			return key
		}
	}
	return sha256.Sum256([]byte(s))
}
