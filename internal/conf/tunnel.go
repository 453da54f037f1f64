package conf

import (
	"fmt"
	"slices"
	"strings"
)

// Tunnel holds the options shared by both roles: how the relay reaches the
// destination, how upload bodies are encoded, and the optional request
// authenticator.
type Tunnel struct {
	Mode           string   `yaml:"mode"`
	Upstream       Upstream `yaml:"upstream"`
	Outbound       Outbound `yaml:"outbound"`
	AuthSecret     string   `yaml:"auth_secret"`
	UploadEncoding string   `yaml:"upload_encoding"`
}

type Upstream struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (t *Tunnel) setDefaults(role string) {
	if t.Mode == "" {
		t.Mode = "mux"
	}
	t.Mode = strings.ToLower(strings.TrimSpace(t.Mode))

	if t.UploadEncoding == "" {
		t.UploadEncoding = "base64"
	}
	t.UploadEncoding = strings.ToLower(strings.TrimSpace(t.UploadEncoding))

	if t.Upstream.Port == 0 {
		t.Upstream.Port = 443
	}
	t.Outbound.setDefaults()
}

func (t *Tunnel) validate(role string) []error {
	var errors []error

	validModes := []string{"mux", "pipe"}
	if !slices.Contains(validModes, t.Mode) {
		errors = append(errors, fmt.Errorf("tunnel mode must be one of: %v", validModes))
	}
	validEncodings := []string{"base64", "raw"}
	if !slices.Contains(validEncodings, t.UploadEncoding) {
		errors = append(errors, fmt.Errorf("upload_encoding must be one of: %v", validEncodings))
	}

	if role == "server" {
		if t.Mode == "pipe" && strings.TrimSpace(t.Upstream.Host) == "" {
			errors = append(errors, fmt.Errorf("upstream host is required in pipe mode"))
		}
		if t.Upstream.Port < 1 || t.Upstream.Port > 65535 {
			errors = append(errors, fmt.Errorf("upstream port must be between 1-65535"))
		}
		errors = append(errors, t.Outbound.validate()...)
	}
	return errors
}

func (u *Upstream) Addr() string {
	return fmt.Sprintf("%s:%d", u.Host, u.Port)
}
