package conf

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	hexKey := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	want, _ := hex.DecodeString(hexKey)

	got := DeriveKey(hexKey)
	if !bytes.Equal(got[:], want) {
		t.Errorf("hex key not decoded verbatim: got %x", got)
	}

	// Anything that is not 64 hex chars hashes.
	pass := DeriveKey("correct horse battery staple")
	want32 := sha256.Sum256([]byte("correct horse battery staple"))
	if pass != want32 {
		t.Errorf("passphrase key = %x, want sha256", pass)
	}

	// 64 chars of non-hex also hashes.
	nonHex := "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"
	if DeriveKey(nonHex) != sha256.Sum256([]byte(nonHex)) {
		t.Error("non-hex 64-char key should hash")
	}
}

func TestLoadDefaults(t *testing.T) {
	doc := []byte(`
role: server
crypto:
  key: testkey
tunnel:
  mode: pipe
  upstream:
    host: example.com
`)
	cfg, err := Load(doc)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Crypto.Cipher != "chacha20-poly1305" {
		t.Errorf("default cipher = %q", cfg.Crypto.Cipher)
	}
	if cfg.Crypto.Layout != "ascii" {
		t.Errorf("default layout = %q", cfg.Crypto.Layout)
	}
	if cfg.Tunnel.Upstream.Port != 443 {
		t.Errorf("default upstream port = %d", cfg.Tunnel.Upstream.Port)
	}
	if cfg.Poll.IdleSec != 300 || cfg.Poll.TotalSec != 25 || cfg.Poll.HeartbeatSec != 5 {
		t.Errorf("poll defaults = %+v", cfg.Poll)
	}
	if cfg.Tunnel.UploadEncoding != "base64" {
		t.Errorf("default upload encoding = %q", cfg.Tunnel.UploadEncoding)
	}
	if cfg.Listen.Addr == nil || cfg.Listen.Addr.Port != 8443 {
		t.Errorf("default listen addr = %v", cfg.Listen.Addr)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing role", "crypto: {key: k}"},
		{"bad cipher", "role: server\ncrypto: {key: k, cipher: rot13}\ntunnel: {mode: mux}"},
		{"bad layout", "role: server\ncrypto: {key: k, layout: cursive}\ntunnel: {mode: mux}"},
		{"pipe without upstream", "role: server\ncrypto: {key: k}\ntunnel: {mode: pipe}"},
		{"missing key", "role: server\ntunnel: {mode: mux}"},
		{"client without server", "role: client\ncrypto: {key: k}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.doc)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SUDOQ_CIPHER", "none")
	doc := []byte(`
role: server
crypto:
  key: testkey
  cipher: chacha20-poly1305
tunnel:
  mode: mux
`)
	cfg, err := Load(doc)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Crypto.Cipher != "none" {
		t.Errorf("env override ignored: cipher = %q", cfg.Crypto.Cipher)
	}
}
