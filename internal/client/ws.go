package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"sudoq/internal/auth"
	"sudoq/internal/conf"
)

// wsConn adapts a websocket connection to net.Conn: each binary message is
// one masked transport chunk.
type wsConn struct {
	ws      *websocket.Conn
	readBuf []byte
}

func dialWS(ctx context.Context, cfg *conf.Conf) (net.Conn, error) {
	u := url.URL{Scheme: cfg.Server.WSScheme(), Host: cfg.Server.Addr_, Path: "/ws"}

	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: false,
	}
	if cfg.Server.TLS {
		serverName := cfg.Server.Host
		if serverName == "" {
			serverName, _, _ = net.SplitHostPort(cfg.Server.Addr_)
		}
		dialer.TLSClientConfig = &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
		}
	}

	header := http.Header{}
	if cfg.Server.Host != "" {
		header.Set("Host", cfg.Server.Host)
	}
	if cfg.Tunnel.AuthSecret != "" {
		header.Set(auth.Header, auth.Tag(cfg.Tunnel.AuthSecret, http.MethodGet, "/ws", ""))
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.readBuf) == 0 {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.readBuf = data
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
