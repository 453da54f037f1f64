// Package client implements the initiator side of the tunnel: it dials the
// relay over the poll or websocket transport, runs the masking/AEAD
// pipeline, and hands plaintext streams to the local front-ends.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/xtaci/smux"

	"sudoq/internal/conf"
	"sudoq/internal/flog"
	"sudoq/internal/protocol"
	"sudoq/internal/sudoku"
)

type Client struct {
	cfg   *conf.Conf
	table *sudoku.Table

	mu  sync.Mutex
	tun net.Conn
	mux *smux.Session
}

func New(cfg *conf.Conf) (*Client, error) {
	layout, err := sudoku.ParseLayout(cfg.Crypto.Layout)
	if err != nil {
		return nil, err
	}
	table, err := sudoku.NewTable(cfg.Crypto.Key[:], layout)
	if err != nil {
		return nil, fmt.Errorf("codec tables: %w", err)
	}
	return &Client{cfg: cfg, table: table}, nil
}

// Start establishes the shared tunnel in mux mode. Pipe mode dials lazily,
// one tunnel per local connection.
func (c *Client) Start(ctx context.Context) error {
	if c.cfg.Tunnel.Mode != "mux" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureMux(ctx)
}

// ensureMux (re)dials the shared tunnel if there is none or the previous
// one died. Caller holds c.mu.
func (c *Client) ensureMux(ctx context.Context) error {
	if c.mux != nil && !c.mux.IsClosed() {
		return nil
	}
	if c.tun != nil {
		c.tun.Close()
	}

	tun, err := c.dialTunnel(ctx)
	if err != nil {
		return fmt.Errorf("failed to dial tunnel: %w", err)
	}
	mux, err := smux.Client(tun, smux.DefaultConfig())
	if err != nil {
		tun.Close()
		return fmt.Errorf("failed to start mux: %w", err)
	}
	c.tun = tun
	c.mux = mux
	flog.Infof("tunnel established to %s (%s transport)", c.cfg.Server.Addr_, c.cfg.Server.Transport)
	return nil
}

// dialTunnel opens the masked transport and wraps it in the protocol
// pipeline, yielding a plaintext net.Conn.
func (c *Client) dialTunnel(ctx context.Context) (net.Conn, error) {
	var transport net.Conn
	var err error
	switch c.cfg.Server.Transport {
	case "ws":
		transport, err = dialWS(ctx, c.cfg)
	default:
		transport, err = dialPoll(ctx, c.cfg)
	}
	if err != nil {
		return nil, err
	}
	return newTunnelConn(transport, c.cfg.Crypto.Key, c.cfg.Crypto.Cipher, c.table)
}

// TCP opens a stream to target through the shared tunnel (mux mode).
func (c *Client) TCP(target string) (net.Conn, error) {
	if c.cfg.Tunnel.Mode != "mux" {
		return nil, fmt.Errorf("per-target streams require mux mode")
	}

	c.mu.Lock()
	if err := c.ensureMux(context.Background()); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	mux := c.mux
	c.mu.Unlock()

	stream, err := mux.OpenStream()
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if err := protocol.Write(stream, &protocol.Proto{Network: "tcp", Addr: target}); err != nil {
		stream.Close()
		return nil, err
	}
	return stream, nil
}

// Pipe opens a dedicated tunnel whose far end is the relay's configured
// upstream (pipe mode).
func (c *Client) Pipe(ctx context.Context) (net.Conn, error) {
	return c.dialTunnel(ctx)
}

// Dial is the front-end entry point: a mux stream to target, or a fresh
// pipe tunnel when the relay routes to its fixed upstream.
func (c *Client) Dial(ctx context.Context, target string) (net.Conn, error) {
	if c.cfg.Tunnel.Mode == "mux" {
		return c.TCP(target)
	}
	return c.Pipe(ctx)
}

// Close tears down the shared tunnel.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mux != nil {
		c.mux.Close()
		c.mux = nil
	}
	if c.tun != nil {
		c.tun.Close()
		c.tun = nil
	}
}
