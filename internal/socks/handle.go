package socks

import (
	"context"
	"errors"
	"net"

	"github.com/txthinking/socks5"

	"sudoq/internal/client"
	"sudoq/internal/flog"
	"sudoq/internal/pkg/buffer"
)

type Handler struct {
	client *client.Client
	ctx    context.Context
}

func (h *Handler) TCPHandle(s *socks5.Server, c *net.TCPConn, r *socks5.Request) error {
	if r.Cmd != socks5.CmdConnect {
		return socks5.ErrUnsupportCmd
	}

	target := r.Address()
	flog.Infof("SOCKS5 accepted CONNECT %s -> %s", c.RemoteAddr(), target)

	strm, err := h.client.TCP(target)
	if err != nil {
		flog.Errorf("SOCKS5 failed to open stream for %s: %v", target, err)
		if p := socks5.NewReply(socks5.RepHostUnreachable, socks5.ATYPIPv4, net.IPv4zero.To4(), []byte{0, 0}); p != nil {
			p.WriteTo(c)
		}
		return err
	}
	defer strm.Close()

	reply := socks5.NewReply(socks5.RepSuccess, socks5.ATYPIPv4, net.IPv4zero.To4(), []byte{0, 0})
	if _, err := reply.WriteTo(c); err != nil {
		return err
	}

	if err := buffer.Join(c, strm); err != nil && !errors.Is(err, net.ErrClosed) {
		flog.Debugf("SOCKS5 stream to %s ended: %v", target, err)
	}
	return nil
}

func (h *Handler) UDPHandle(s *socks5.Server, addr *net.UDPAddr, d *socks5.Datagram) error {
	return socks5.ErrUnsupportCmd
}
