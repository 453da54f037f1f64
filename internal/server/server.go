package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xtaci/smux"

	"sudoq/internal/conf"
	"sudoq/internal/flog"
	"sudoq/internal/session"
	"sudoq/internal/sudoku"
)

// Server is the relay: it terminates the masked transports (long-poll and
// websocket), runs one protocol session per tunnel and moves plaintext to
// the destination, either a fixed upstream (pipe mode) or per-stream
// targets over smux (mux mode).
type Server struct {
	cfg      *conf.Conf
	dialer   Dialer
	table    *sudoku.Table
	registry *session.Registry
	upgrader websocket.Upgrader
	smuxCfg  *smux.Config

	// Long-poll pacing, copied from conf so tests can shorten them.
	pollTotal     time.Duration
	pollHeartbeat time.Duration
}

func New(cfg *conf.Conf) (*Server, error) {
	layout, err := sudoku.ParseLayout(cfg.Crypto.Layout)
	if err != nil {
		return nil, err
	}
	table, err := sudoku.NewTable(cfg.Crypto.Key[:], layout)
	if err != nil {
		return nil, fmt.Errorf("codec tables: %w", err)
	}

	var dialer Dialer
	if cfg.Tunnel.Outbound.Type == "socks5" {
		d, err := newSOCKS5Dialer(cfg.Tunnel.Outbound.Addr, cfg.Tunnel.Outbound.Username, cfg.Tunnel.Outbound.Password)
		if err != nil {
			return nil, fmt.Errorf("outbound socks5: %w", err)
		}
		dialer = d
	} else {
		dialer = newDirectDialer()
	}

	return &Server{
		cfg:           cfg,
		dialer:        dialer,
		table:         table,
		registry:      session.NewRegistry(cfg.Poll.Idle()),
		upgrader:      websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		smuxCfg:       smux.DefaultConfig(),
		pollTotal:     cfg.Poll.Total(),
		pollHeartbeat: cfg.Poll.Heartbeat(),
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	listener, err := net.ListenTCP("tcp", s.cfg.Listen.Addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.cfg.Listen.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	flog.Infof("Server started - listening on %s", s.cfg.Listen.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		flog.Debugf("server shutdown with: %v", err)
	}
	flog.Infof("Server shutdown completed")
	return nil
}

// Handler exposes the full endpoint surface, for embedding the relay into
// an existing HTTP server.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.withAuth(s.handleSession))
	mux.HandleFunc("/stream", s.withAuth(s.handleStream))
	mux.HandleFunc("/api/v1/upload", s.withAuth(s.handleUpload))
	mux.HandleFunc("/fin", s.withAuth(s.handleFin))
	mux.HandleFunc("/close", s.withAuth(s.handleClose))
	mux.HandleFunc("/ws", s.withAuth(s.handleWS))
	mux.HandleFunc("/", s.handleDecoy)
	return mux
}

// newSession wires a fresh session to its destination: in mux mode a pipe
// into the smux acceptor, in pipe mode a TCP connection to the configured
// upstream.
func (s *Server) newSession(ctx context.Context) (*session.Session, error) {
	var upstream net.Conn
	if s.cfg.Tunnel.Mode == "mux" {
		local, remote := net.Pipe()
		upstream = local
		go s.serveMux(remote)
	} else {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		conn, err := s.dialer.DialContext(dialCtx, "tcp", s.cfg.Tunnel.Upstream.Addr())
		if err != nil {
			return nil, fmt.Errorf("upstream dial: %w", err)
		}
		upstream = conn
	}

	sess, err := session.New(s.cfg.Crypto.Key, s.cfg.Crypto.Cipher, s.table, upstream)
	if err != nil {
		upstream.Close()
		return nil, err
	}
	sess.Start()
	return sess, nil
}
