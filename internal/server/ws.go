package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"sudoq/internal/flog"
)

// handleWS is the stream transport: one websocket connection carries the
// masked byte stream for one session, binary message in each direction.
// These sessions are connection-scoped and never enter the token registry.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		flog.Debugf("ws upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	sess, err := s.newSession(r.Context())
	if err != nil {
		flog.Errorf("ws session setup failed: %v", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "upstream unavailable"))
		return
	}
	defer sess.Close()
	flog.Infof("ws session opened for %s", r.RemoteAddr)

	go func() {
		defer sess.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			if err := sess.Feed(data); err != nil {
				flog.Debugf("ws feed failed: %v", err)
				return
			}
		}
	}()

	for {
		select {
		case frame := <-sess.Ready():
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-sess.ReadDone():
			for {
				select {
				case frame := <-sess.Ready():
					if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
						return
					}
				default:
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		case <-sess.Closed():
			return
		}
	}
}
