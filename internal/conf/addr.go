package conf

import (
	"fmt"
	"net"
	"strings"
)

func validateAddr(addr string, allowEmptyHost bool) (*net.TCPAddr, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("address is required")
	}
	resolved, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if !allowEmptyHost && resolved.IP == nil {
		return nil, fmt.Errorf("address %q must include a host", addr)
	}
	return resolved, nil
}
