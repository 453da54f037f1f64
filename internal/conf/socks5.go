package conf

import "net"

type SOCKS5 struct {
	Listen_  string `yaml:"listen"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	Listen *net.TCPAddr `yaml:"-"`
}

func (s *SOCKS5) setDefaults() {}

func (s *SOCKS5) validate() []error {
	var errors []error

	addr, err := validateAddr(s.Listen_, true)
	if err != nil {
		errors = append(errors, err)
	}
	s.Listen = addr
	return errors
}
