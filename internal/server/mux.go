package server

import (
	"context"
	"net"
	"time"

	"github.com/xtaci/smux"

	"sudoq/internal/flog"
	"sudoq/internal/pkg/buffer"
	"sudoq/internal/protocol"
)

// serveMux runs the destination side of a mux-mode session: accept smux
// streams off the decrypted pipe, read each stream's target preamble and
// splice it to a fresh outbound connection.
func (s *Server) serveMux(conn net.Conn) {
	defer conn.Close()

	mux, err := smux.Server(conn, s.smuxCfg)
	if err != nil {
		flog.Errorf("mux setup failed: %v", err)
		return
	}
	defer mux.Close()

	for {
		stream, err := mux.AcceptStream()
		if err != nil {
			flog.Debugf("mux accept ended: %v", err)
			return
		}
		go s.muxStream(stream)
	}
}

func (s *Server) muxStream(stream *smux.Stream) {
	defer stream.Close()

	p, err := protocol.Read(stream)
	if err != nil {
		flog.Debugf("stream %d: bad preamble: %v", stream.ID(), err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := s.dialer.DialContext(ctx, p.Network, p.Addr)
	cancel()
	if err != nil {
		flog.Errorf("stream %d: dial %s failed: %v", stream.ID(), p.Addr, err)
		return
	}
	defer conn.Close()
	flog.Debugf("stream %d: connected to %s", stream.ID(), p.Addr)

	if err := buffer.Join(stream, conn); err != nil {
		flog.Debugf("stream %d to %s ended: %v", stream.ID(), p.Addr, err)
	}
}
