package server

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudoq/internal/auth"
	"sudoq/internal/conf"
	"sudoq/internal/session"
	"sudoq/internal/sudoku"
)

// startEcho runs a TCP echo endpoint standing in for the upstream.
func startEcho(t *testing.T) *net.TCPAddr {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				io.Copy(conn, conn)
				conn.Close()
			}()
		}
	}()
	return listener.Addr().(*net.TCPAddr)
}

func testConf(t *testing.T, mode string, upstream *net.TCPAddr) *conf.Conf {
	t.Helper()
	cfg := &conf.Conf{Role: "server"}
	cfg.Crypto.Key = conf.DeriveKey("test key material")
	cfg.Crypto.Cipher = "chacha20-poly1305"
	cfg.Crypto.Layout = "ascii"
	cfg.Tunnel.Mode = mode
	cfg.Tunnel.UploadEncoding = "base64"
	cfg.Tunnel.Outbound.Type = "direct"
	if upstream != nil {
		cfg.Tunnel.Upstream.Host = upstream.IP.String()
		cfg.Tunnel.Upstream.Port = upstream.Port
	}
	cfg.Poll.IdleSec = 300
	cfg.Poll.TotalSec = 25
	cfg.Poll.HeartbeatSec = 5
	return cfg
}

func newTestServer(t *testing.T, cfg *conf.Conf) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func newPeer(t *testing.T, cfg *conf.Conf) *session.Endpoint {
	t.Helper()
	layout, err := sudoku.ParseLayout(cfg.Crypto.Layout)
	require.NoError(t, err)
	table, err := sudoku.NewTable(cfg.Crypto.Key[:], layout)
	require.NoError(t, err)
	ep, err := session.NewEndpoint(cfg.Crypto.Key, cfg.Crypto.Cipher, table)
	require.NoError(t, err)
	return ep
}

var tokenRe = regexp.MustCompile(`^token=([0-9a-f]{32})$`)

func openSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Get(ts.URL + "/session")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	m := tokenRe.FindStringSubmatch(string(body))
	require.NotNil(t, m, "session body %q", body)
	return m[1]
}

func uploadFrames(t *testing.T, ts *httptest.Server, token string, frames ...[]byte) *http.Response {
	t.Helper()
	var body strings.Builder
	for _, f := range frames {
		body.WriteString(base64.StdEncoding.EncodeToString(f))
		body.WriteByte('\n')
	}
	resp, err := http.Post(ts.URL+"/api/v1/upload?token="+token, "text/plain", strings.NewReader(body.String()))
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestSessionTokenShape(t *testing.T) {
	cfg := testConf(t, "pipe", startEcho(t))
	_, ts := newTestServer(t, cfg)
	token := openSession(t, ts)
	assert.Len(t, token, 32)
}

// Upload → echo upstream → stream: the full poll-transport data path.
func TestUploadStreamEcho(t *testing.T) {
	cfg := testConf(t, "pipe", startEcho(t))
	srv, ts := newTestServer(t, cfg)
	srv.pollHeartbeat = 100 * time.Millisecond
	srv.pollTotal = 5 * time.Second

	peer := newPeer(t, cfg)
	token := openSession(t, ts)

	payload := []byte("ping through the lab")
	frame, err := peer.EncodeFrame(payload)
	require.NoError(t, err)
	resp := uploadFrames(t, ts, token, frame)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	streamResp, err := http.Get(ts.URL + "/stream?token=" + token)
	require.NoError(t, err)
	defer streamResp.Body.Close()
	require.Equal(t, http.StatusOK, streamResp.StatusCode)

	scanner := bufio.NewScanner(streamResp.Body)
	var got []byte
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue // keepalive
		}
		masked, err := base64.StdEncoding.DecodeString(line)
		require.NoError(t, err)
		part, err := peer.Decode(masked)
		require.NoError(t, err)
		got = append(got, part...)
		if len(got) >= len(payload) {
			break
		}
	}
	assert.Equal(t, payload, got)
}

// S5: an idle stream emits a heartbeat newline, later data arrives as a
// base64 line, and the response ends once the total budget elapses while
// the session stays reachable.
func TestStreamLongPoll(t *testing.T) {
	cfg := testConf(t, "pipe", startEcho(t))
	srv, ts := newTestServer(t, cfg)
	srv.pollHeartbeat = 50 * time.Millisecond
	srv.pollTotal = 400 * time.Millisecond

	peer := newPeer(t, cfg)
	token := openSession(t, ts)

	start := time.Now()
	streamResp, err := http.Get(ts.URL + "/stream?token=" + token)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, streamResp.StatusCode)

	reader := bufio.NewReader(streamResp.Body)

	// First line with no data pending must be a bare keepalive.
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\n", line, "expected heartbeat")
	assert.Less(t, time.Since(start), 300*time.Millisecond)

	// Enqueue one frame via the upstream echo.
	frame, err := peer.EncodeFrame([]byte("wake the waiter"))
	require.NoError(t, err)
	uploadFrames(t, ts, token, frame)

	var data string
	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) != "" {
			data = strings.TrimSpace(line)
			break
		}
	}
	masked, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	plain, err := peer.Decode(masked)
	require.NoError(t, err)
	assert.Equal(t, []byte("wake the waiter"), plain)

	// The response must close once the total window is spent.
	_, err = io.ReadAll(reader)
	require.NoError(t, err)
	streamResp.Body.Close()

	// Session still valid afterwards.
	second, err := http.Get(ts.URL + "/stream?token=" + token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, second.StatusCode)
	second.Body.Close()
}

func TestUnknownToken(t *testing.T) {
	cfg := testConf(t, "pipe", startEcho(t))
	_, ts := newTestServer(t, cfg)

	bogus := strings.Repeat("ab", 16)
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/stream?token=" + bogus},
		{http.MethodPost, "/api/v1/upload?token=" + bogus},
		{http.MethodPost, "/fin?token=" + bogus},
		{http.MethodPost, "/close?token=" + bogus},
	} {
		req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestCloseInvalidatesToken(t *testing.T) {
	cfg := testConf(t, "pipe", startEcho(t))
	_, ts := newTestServer(t, cfg)
	token := openSession(t, ts)

	resp, err := http.Post(ts.URL+"/close?token="+token, "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/stream?token=" + token)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadMalformedBody(t *testing.T) {
	cfg := testConf(t, "pipe", startEcho(t))
	_, ts := newTestServer(t, cfg)
	token := openSession(t, ts)

	resp, err := http.Post(ts.URL+"/api/v1/upload?token="+token, "text/plain",
		strings.NewReader("!!! not base64 !!!\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadRawEncoding(t *testing.T) {
	cfg := testConf(t, "pipe", startEcho(t))
	cfg.Tunnel.UploadEncoding = "raw"
	srv, ts := newTestServer(t, cfg)
	srv.pollHeartbeat = 100 * time.Millisecond
	srv.pollTotal = 5 * time.Second

	peer := newPeer(t, cfg)
	token := openSession(t, ts)

	frame, err := peer.EncodeFrame([]byte("raw body"))
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/v1/upload?token="+token, "application/octet-stream",
		strings.NewReader(string(frame)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthenticator(t *testing.T) {
	cfg := testConf(t, "pipe", startEcho(t))
	cfg.Tunnel.AuthSecret = "lab-access"
	_, ts := newTestServer(t, cfg)

	// No tag → 401 before any session state exists.
	resp, err := http.Get(ts.URL + "/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/session", nil)
	require.NoError(t, err)
	req.Header.Set(auth.Header, auth.Tag("lab-access", http.MethodGet, "/session", ""))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Regexp(t, tokenRe, string(body))
}

func TestDecoyPage(t *testing.T) {
	cfg := testConf(t, "pipe", startEcho(t))
	_, ts := newTestServer(t, cfg)

	for _, path := range []string{"/", "/research/2025", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "Sudoku Research Lab")
	}
}

func TestSessionUpstreamUnreachable(t *testing.T) {
	// A port with nothing listening: dial must fail fast and map to 502.
	dead := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
	cfg := testConf(t, "pipe", dead)
	_, ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestFinHalfCloses(t *testing.T) {
	// Upstream that records EOF on its read side and then sends a reply.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	sawEOF := make(chan struct{})
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		io.Copy(io.Discard, conn) // returns on client half-close
		close(sawEOF)
		fmt.Fprint(conn, "late reply")
		conn.Close()
	}()

	cfg := testConf(t, "pipe", listener.Addr().(*net.TCPAddr))
	_, ts := newTestServer(t, cfg)
	token := openSession(t, ts)

	resp, err := http.Post(ts.URL+"/fin?token="+token, "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case <-sawEOF:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never observed the half-close")
	}
}
