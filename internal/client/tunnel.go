package client

import (
	"net"
	"sync"
	"time"

	"sudoq/internal/session"
	"sudoq/internal/sudoku"
)

// tunnelConn turns a masked byte transport into a plaintext net.Conn by
// running the session pipeline on both directions. Reads and writes each
// own their half of the endpoint; a mutex serializes concurrent writers.
type tunnelConn struct {
	transport net.Conn
	ep        *session.Endpoint

	rmu     sync.Mutex
	readBuf []byte
	chunk   []byte

	wmu sync.Mutex
}

func newTunnelConn(transport net.Conn, key [32]byte, cipher string, table *sudoku.Table) (*tunnelConn, error) {
	ep, err := session.NewEndpoint(key, cipher, table)
	if err != nil {
		return nil, err
	}
	return &tunnelConn{
		transport: transport,
		ep:        ep,
		chunk:     make([]byte, 32*1024),
	}, nil
}

func (c *tunnelConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for len(c.readBuf) == 0 {
		n, err := c.transport.Read(c.chunk)
		if n > 0 {
			plain, derr := c.ep.Decode(c.chunk[:n])
			c.readBuf = append(c.readBuf, plain...)
			if derr != nil {
				c.transport.Close()
				if len(c.readBuf) > 0 {
					break
				}
				return 0, derr
			}
		}
		if err != nil {
			if len(c.readBuf) > 0 {
				break
			}
			return 0, err
		}
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *tunnelConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > session.MaxPlaintext {
			chunk = p[:session.MaxPlaintext]
		}
		frame, err := c.ep.EncodeFrame(chunk)
		if err != nil {
			return written, err
		}
		if _, err := c.transport.Write(frame); err != nil {
			return written, err
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

func (c *tunnelConn) Close() error                       { return c.transport.Close() }
func (c *tunnelConn) LocalAddr() net.Addr                { return c.transport.LocalAddr() }
func (c *tunnelConn) RemoteAddr() net.Addr               { return c.transport.RemoteAddr() }
func (c *tunnelConn) SetDeadline(t time.Time) error      { return c.transport.SetDeadline(t) }
func (c *tunnelConn) SetReadDeadline(t time.Time) error  { return c.transport.SetReadDeadline(t) }
func (c *tunnelConn) SetWriteDeadline(t time.Time) error { return c.transport.SetWriteDeadline(t) }
