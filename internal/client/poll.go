package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sudoq/internal/auth"
	"sudoq/internal/conf"
	"sudoq/internal/flog"
)

const (
	pollRequestTimeout = 40 * time.Second
	pushFlushInterval  = 5 * time.Millisecond
	pushMaxBatch       = 256 * 1024
	pullQueueLen       = 128
)

// pollConn carries the masked byte stream over short HTTP requests: POST
// bodies uplink, long-poll GET responses downlink. It is a net.Conn so the
// protocol pipeline can sit on top of it unchanged.
type pollConn struct {
	client     *http.Client
	sessionURL string
	uploadURL  string
	streamURL  string
	closeURL   string
	headerHost string
	authSecret string
	token      string
	base64Up   bool

	rxc     chan []byte
	writeCh chan []byte
	closed  chan struct{}

	mu      sync.Mutex
	readBuf []byte
}

func dialPoll(ctx context.Context, cfg *conf.Conf) (net.Conn, error) {
	scheme := cfg.Server.Scheme()
	host := cfg.Server.Addr_

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		ForceAttemptHTTP2:   true,
		DisableCompression:  true,
		MaxIdleConns:        32,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.Server.TLS {
		serverName := cfg.Server.Host
		if serverName == "" {
			serverName, _, _ = net.SplitHostPort(host)
		}
		transport.TLSClientConfig = &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
		}
	}

	c := &pollConn{
		client:     &http.Client{Transport: transport},
		sessionURL: (&url.URL{Scheme: scheme, Host: host, Path: "/session"}).String(),
		headerHost: cfg.Server.Host,
		authSecret: cfg.Tunnel.AuthSecret,
		base64Up:   cfg.Tunnel.UploadEncoding != "raw",
		rxc:        make(chan []byte, pullQueueLen),
		writeCh:    make(chan []byte, 256),
		closed:     make(chan struct{}),
	}

	token, err := c.authorize(ctx)
	if err != nil {
		return nil, err
	}
	c.token = token
	query := "token=" + url.QueryEscape(token)
	c.uploadURL = (&url.URL{Scheme: scheme, Host: host, Path: "/api/v1/upload", RawQuery: query}).String()
	c.streamURL = (&url.URL{Scheme: scheme, Host: host, Path: "/stream", RawQuery: query}).String()
	c.closeURL = (&url.URL{Scheme: scheme, Host: host, Path: "/close", RawQuery: query}).String()

	go c.pullLoop()
	go c.pushLoop()
	return c, nil
}

func (c *pollConn) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if c.headerHost != "" {
		req.Host = c.headerHost
	}
	req.Header.Set("Cache-Control", "no-cache")
	if c.authSecret != "" {
		u := req.URL
		req.Header.Set(auth.Header, auth.Tag(c.authSecret, method, u.Path, u.Query().Get("token")))
	}
	return req, nil
}

func (c *pollConn) authorize(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.sessionURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	resp.Body.Close()
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("session bad status: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}
	return parseToken(body)
}

func parseToken(body []byte) (string, error) {
	s := strings.TrimSpace(string(body))
	idx := strings.Index(s, "token=")
	if idx < 0 {
		return "", errors.New("missing token")
	}
	s = s[idx+len("token="):]
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') {
			b.WriteByte(ch)
			continue
		}
		break
	}
	token := b.String()
	if len(token) != 32 {
		return "", fmt.Errorf("bad token %q", token)
	}
	return token, nil
}

func (c *pollConn) pullLoop() {
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		reqCtx, cancel := context.WithTimeout(context.Background(), pollRequestTimeout)
		req, err := c.newRequest(reqCtx, http.MethodGet, c.streamURL, nil)
		if err != nil {
			cancel()
			c.teardown()
			return
		}
		resp, err := c.client.Do(req)
		if err != nil {
			cancel()
			c.teardown()
			return
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			cancel()
			c.teardown()
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue // keepalive
			}
			payload := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
			n, derr := base64.StdEncoding.Decode(payload, line)
			if derr != nil {
				resp.Body.Close()
				cancel()
				c.teardown()
				return
			}
			select {
			case c.rxc <- payload[:n]:
			case <-c.closed:
				resp.Body.Close()
				cancel()
				return
			}
		}
		err = scanner.Err()
		resp.Body.Close()
		cancel()
		if err != nil {
			flog.Debugf("poll pull ended: %v", err)
			c.teardown()
			return
		}
		// Long poll ended cleanly; reconnect.
	}
}

func (c *pollConn) pushLoop() {
	var (
		buf   bytes.Buffer
		timer = time.NewTimer(pushFlushInterval)
	)
	defer timer.Stop()

	flush := func() bool {
		if buf.Len() == 0 {
			return true
		}
		reqCtx, cancel := context.WithTimeout(context.Background(), pollRequestTimeout)
		defer cancel()
		req, err := c.newRequest(reqCtx, http.MethodPost, c.uploadURL, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return false
		}
		req.Header.Set("Content-Type", "text/plain")
		resp, err := c.client.Do(req)
		if err != nil {
			return false
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		buf.Reset()
		return true
	}

	for {
		select {
		case b := <-c.writeCh:
			if c.base64Up {
				line := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
				base64.StdEncoding.Encode(line, b)
				buf.Write(line)
				buf.WriteByte('\n')
			} else {
				buf.Write(b)
			}
			if buf.Len() >= pushMaxBatch {
				if !flush() {
					c.teardown()
					return
				}
			}
		case <-timer.C:
			if !flush() {
				c.teardown()
				return
			}
			timer.Reset(pushFlushInterval)
		case <-c.closed:
			flush()
			return
		}
	}
}

func (c *pollConn) Read(p []byte) (int, error) {
	if len(c.readBuf) == 0 {
		select {
		case c.readBuf = <-c.rxc:
		case <-c.closed:
			return 0, io.ErrClosedPipe
		}
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *pollConn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	payload := make([]byte, len(p))
	copy(payload, p)
	select {
	case c.writeCh <- payload:
		return len(p), nil
	case <-c.closed:
		return 0, io.ErrClosedPipe
	}
}

// teardown closes locally without notifying the relay; its idle sweep
// collects the session.
func (c *pollConn) teardown() {
	c.mu.Lock()
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	c.mu.Unlock()
}

// Close signals the relay too, so the session dies immediately instead of
// idling out.
func (c *pollConn) Close() error {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return nil
	default:
		close(c.closed)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if req, err := c.newRequest(ctx, http.MethodPost, c.closeURL, nil); err == nil {
		if resp, doErr := c.client.Do(req); doErr == nil {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
			resp.Body.Close()
		}
	}
	return nil
}

func (c *pollConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *pollConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *pollConn) SetDeadline(time.Time) error        { return nil }
func (c *pollConn) SetReadDeadline(time.Time) error    { return nil }
func (c *pollConn) SetWriteDeadline(time.Time) error   { return nil }
