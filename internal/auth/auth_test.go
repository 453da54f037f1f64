package auth

import "testing"

func TestTagDeterministic(t *testing.T) {
	a := Tag("secret", "POST", "/api/v1/upload", "abc123")
	b := Tag("secret", "POST", "/api/v1/upload", "abc123")
	if a != b {
		t.Error("tags for identical inputs differ")
	}
	if len(a) != 64 {
		t.Errorf("tag length = %d, want full 32-byte hmac as hex", len(a))
	}
}

func TestVerify(t *testing.T) {
	tag := Tag("secret", "GET", "/stream", "tok")
	if !Verify("secret", "GET", "/stream", "tok", tag) {
		t.Error("valid tag rejected")
	}
	for name, args := range map[string][4]string{
		"wrong secret": {"other", "GET", "/stream", "tok"},
		"wrong method": {"secret", "POST", "/stream", "tok"},
		"wrong path":   {"secret", "GET", "/close", "tok"},
		"wrong token":  {"secret", "GET", "/stream", "tok2"},
	} {
		if Verify(args[0], args[1], args[2], args[3], tag) {
			t.Errorf("%s accepted", name)
		}
	}
	if Verify("secret", "GET", "/stream", "tok", tag[:10]) {
		t.Error("truncated tag accepted")
	}
}
