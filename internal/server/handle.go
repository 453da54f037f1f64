package server

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"sudoq/internal/flog"
	"sudoq/internal/session"
)

// maxUploadBytes caps one upload request body.
const maxUploadBytes = 1 << 20

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	sess, err := s.newSession(r.Context())
	if err != nil {
		flog.Errorf("session setup failed: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	token, err := s.registry.Put(sess)
	if err != nil {
		sess.Close()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	flog.Infof("session %s: opened for %s", token, r.RemoteAddr)

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, "token="+token)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return nil, false
	}
	sess, ok := s.registry.Get(token)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// handleStream is the long poll: emit ready frames as base64 lines as they
// appear, a bare newline as keepalive on every idle heartbeat, and end the
// response once the total budget elapses so the client reconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Accel-Buffering", "no")

	writeFrame := func(frame []byte) bool {
		line := make([]byte, base64.StdEncoding.EncodedLen(len(frame))+1)
		base64.StdEncoding.Encode(line, frame)
		line[len(line)-1] = '\n'
		if _, err := w.Write(line); err != nil {
			return false
		}
		if canFlush {
			flusher.Flush()
		}
		return true
	}

	total := time.NewTimer(s.pollTotal)
	defer total.Stop()
	heartbeat := time.NewTimer(s.pollHeartbeat)
	defer heartbeat.Stop()

	for {
		// Drain whatever is ready before suspending.
		drained := false
	drain:
		for {
			select {
			case frame := <-sess.Ready():
				if !writeFrame(frame) {
					return
				}
				drained = true
			default:
				break drain
			}
		}
		if drained {
			resetTimer(heartbeat, s.pollHeartbeat)
		}

		select {
		case frame := <-sess.Ready():
			if !writeFrame(frame) {
				return
			}
			resetTimer(heartbeat, s.pollHeartbeat)
		case <-heartbeat.C:
			if _, err := io.WriteString(w, "\n"); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
			heartbeat.Reset(s.pollHeartbeat)
		case <-total.C:
			return
		case <-sess.ReadDone():
			// Upstream EOF: whatever it produced is already queued; flush
			// it and finish the tunnel.
			for {
				select {
				case frame := <-sess.Ready():
					if !writeFrame(frame) {
						return
					}
				default:
					s.registry.Remove(sess.Token())
					return
				}
			}
		case <-sess.Closed():
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(body) > maxUploadBytes {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
		return
	}

	masked, err := s.decodeUploadBody(body)
	if err != nil {
		flog.Debugf("session %s: malformed upload: %v", sess.Token(), err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := sess.Feed(masked); err != nil {
		// Feed already closed the session; invalidate its token too.
		s.registry.Remove(sess.Token())
		flog.Debugf("session %s: upload rejected: %v", sess.Token(), err)
		if errors.Is(err, session.ErrClosed) {
			http.Error(w, "not found", http.StatusNotFound)
		} else {
			http.Error(w, "bad request", http.StatusBadRequest)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

// decodeUploadBody handles the canonical base64-per-line encoding; the raw
// switch accepts the concatenated masked bytes verbatim.
func (s *Server) decodeUploadBody(body []byte) ([]byte, error) {
	if s.cfg.Tunnel.UploadEncoding == "raw" {
		return body, nil
	}
	var masked []byte
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), maxUploadBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
		n, err := base64.StdEncoding.Decode(decoded, line)
		if err != nil {
			return nil, err
		}
		masked = append(masked, decoded[:n]...)
	}
	return masked, scanner.Err()
}

func (s *Server) handleFin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Fin(); err != nil {
		flog.Debugf("session %s: fin: %v", sess.Token(), err)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if _, ok := s.registry.Get(token); !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.registry.Remove(token)
	flog.Infof("session %s: closed by client", token)
	w.WriteHeader(http.StatusOK)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
