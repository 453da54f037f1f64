package conf

import (
	"fmt"
	"slices"
	"strings"
)

// Server describes the relay a client connects to.
type Server struct {
	Addr_     string `yaml:"addr"`
	Transport string `yaml:"transport"`
	TLS       bool   `yaml:"tls"`
	Host      string `yaml:"host"` // optional Host header / SNI override
}

func (s *Server) setDefaults() {
	if s.Transport == "" {
		s.Transport = "poll"
	}
	s.Transport = strings.ToLower(strings.TrimSpace(s.Transport))
}

func (s *Server) validate() []error {
	var errors []error

	if strings.TrimSpace(s.Addr_) == "" {
		errors = append(errors, fmt.Errorf("server addr is required"))
	} else if _, err := validateAddr(s.Addr_, false); err != nil {
		errors = append(errors, err)
	}

	validTransports := []string{"poll", "ws"}
	if !slices.Contains(validTransports, s.Transport) {
		errors = append(errors, fmt.Errorf("transport must be one of: %v", validTransports))
	}
	return errors
}

func (s *Server) Scheme() string {
	if s.TLS {
		return "https"
	}
	return "http"
}

func (s *Server) WSScheme() string {
	if s.TLS {
		return "wss"
	}
	return "ws"
}
