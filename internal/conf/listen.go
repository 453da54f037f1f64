package conf

import "net"

type Listen struct {
	Addr_ string `yaml:"addr"`

	Addr *net.TCPAddr `yaml:"-"`
}

func (l *Listen) setDefaults() {
	if l.Addr_ == "" {
		l.Addr_ = ":8443"
	}
}

func (l *Listen) validate() []error {
	var errors []error

	addr, err := validateAddr(l.Addr_, true)
	if err != nil {
		errors = append(errors, err)
	}
	l.Addr = addr
	return errors
}
