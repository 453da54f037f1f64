package aead

import (
	"bytes"
	"encoding/hex"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func fromHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex in test: %v", err)
	}
	return b
}

// RFC 8439 §2.8.2 AEAD test vector.
func TestSealVector(t *testing.T) {
	var key [32]byte
	copy(key[:], fromHex(t, "808182838485868788898a8b8c8d8e8f909192939495969798999a9b9c9d9e9f"))
	var nonce [NonceSize]byte
	copy(nonce[:], fromHex(t, "070000004041424344454647"))
	aad := fromHex(t, "50515253c0c1c2c3c4c5c6c7")
	plaintext := []byte("Ladies and Gentlemen of the class of '99: If I could offer you " +
		"only one tip for the future, sunscreen would be it.")

	wantCTPrefix := fromHex(t, "d31a8d34648e60db7b86afbc53ef7ec2")
	wantTag := fromHex(t, "1ae10b594f09e26a7e902ecbd0600691")

	record, err := Seal(&key, &nonce, plaintext, aad)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if len(record) != len(plaintext)+TagSize {
		t.Fatalf("record length = %d, want %d", len(record), len(plaintext)+TagSize)
	}
	if !bytes.Equal(record[:16], wantCTPrefix) {
		t.Errorf("ciphertext prefix = %x, want %x", record[:16], wantCTPrefix)
	}
	if !bytes.Equal(record[len(plaintext):], wantTag) {
		t.Errorf("tag = %x, want %x", record[len(plaintext):], wantTag)
	}

	out := make([]byte, len(plaintext))
	if err := Open(out, &key, &nonce, record, aad); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Error("Open() did not recover the plaintext")
	}
}

// Any flipped bit in ciphertext or tag must fail and zero the output.
func TestOpenTamperZeroes(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	var nonce [NonceSize]byte
	nonce[11] = 7
	plaintext := bytes.Repeat([]byte{0xA5}, 95)

	record, err := Seal(&key, &nonce, plaintext, nil)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	zero := make([]byte, len(plaintext))
	for _, pos := range []int{0, len(plaintext) / 2, len(record) - 1} {
		tampered := append([]byte(nil), record...)
		tampered[pos] ^= 0x01

		out := bytes.Repeat([]byte{0xFF}, len(plaintext))
		if err := Open(out, &key, &nonce, tampered, nil); err != ErrAuth {
			t.Fatalf("Open(tampered @%d) err = %v, want ErrAuth", pos, err)
		}
		if !bytes.Equal(out, zero) {
			t.Errorf("Open(tampered @%d) left nonzero bytes in output", pos)
		}
	}
}

// Cross-check against the x/crypto implementation over assorted sizes,
// including the 16-byte padding boundaries.
func TestSealMatchesXCrypto(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(0x40 + i)
	}
	ref, err := chacha20poly1305.New(key[:])
	if err != nil {
		t.Fatalf("chacha20poly1305.New: %v", err)
	}

	for _, n := range []int{0, 1, 15, 16, 17, 63, 64, 65, 255, 1000} {
		plaintext := make([]byte, n)
		for i := range plaintext {
			plaintext[i] = byte(i * 3)
		}
		aad := []byte("associated data")
		var nonce [NonceSize]byte
		nonce[0] = byte(n)

		got, err := Seal(&key, &nonce, plaintext, aad)
		if err != nil {
			t.Fatalf("Seal(%d) error: %v", n, err)
		}
		want := ref.Seal(nil, nonce[:], plaintext, aad)
		if !bytes.Equal(got, want) {
			t.Errorf("Seal(%d bytes) differs from x/crypto", n)
		}
	}
}

func TestCipherRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], bytes.Repeat([]byte{0x11}, 32))

	for name := range Registry {
		t.Run(name, func(t *testing.T) {
			c, err := New(name, key)
			if err != nil {
				t.Fatalf("New(%q) error: %v", name, err)
			}
			plaintext := []byte("frame payload bytes")

			record, err := c.Seal(3, plaintext)
			if err != nil {
				t.Fatalf("Seal() error: %v", err)
			}
			if len(record) != len(plaintext)+c.Overhead() {
				t.Errorf("record length %d, want %d", len(record), len(plaintext)+c.Overhead())
			}
			got, err := c.Open(3, record)
			if err != nil {
				t.Fatalf("Open() error: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Error("round trip failed")
			}
		})
	}
}

// The implicit nonce binds the record to its counter.
func TestChaChaCounterBinding(t *testing.T) {
	var key [32]byte
	c, err := New("chacha20-poly1305", key)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	record, err := c.Seal(1, []byte("bound to counter 1"))
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if _, err := c.Open(2, record); err != ErrAuth {
		t.Errorf("Open with wrong counter: err = %v, want ErrAuth", err)
	}
	if _, err := c.Open(1, record); err != nil {
		t.Errorf("Open with right counter: err = %v", err)
	}
}

func TestGCMWireLayout(t *testing.T) {
	var key [32]byte
	c, err := New("aes-128-gcm", key)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	plaintext := []byte("gcm payload")

	record, err := c.Seal(9, plaintext)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	// nonce(12) ‖ C ‖ tag(16)
	if len(record) != NonceSize+len(plaintext)+16 {
		t.Fatalf("record length = %d", len(record))
	}
	// The embedded nonce makes the counter irrelevant on open.
	if _, err := c.Open(12345, record); err != nil {
		t.Errorf("Open() error: %v", err)
	}
}
