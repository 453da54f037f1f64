package conf

import (
	"fmt"
	"net"
	"strings"
)

type Forward struct {
	Listen_ string `yaml:"listen"`
	Target_ string `yaml:"target"`

	Listen *net.TCPAddr `yaml:"-"`
	Target string       `yaml:"-"`
}

func (f *Forward) setDefaults() {}

func (f *Forward) validate() []error {
	var errors []error

	addr, err := validateAddr(f.Listen_, true)
	if err != nil {
		errors = append(errors, err)
	}
	f.Listen = addr

	target := strings.TrimSpace(f.Target_)
	if target == "" {
		errors = append(errors, fmt.Errorf("forward target is required"))
	} else if _, _, splitErr := net.SplitHostPort(target); splitErr != nil {
		errors = append(errors, fmt.Errorf("forward target invalid: %w", splitErr))
	} else {
		f.Target = target
	}
	return errors
}
