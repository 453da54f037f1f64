package server

import (
	"net/http"

	"sudoq/internal/auth"
)

// withAuth gates a tunnel endpoint behind the HMAC authenticator. With no
// secret configured it is a passthrough. Failures answer 401 before any
// session state is touched.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := s.cfg.Tunnel.AuthSecret
		if secret != "" {
			presented := r.Header.Get(auth.Header)
			if !auth.Verify(secret, r.Method, r.URL.Path, r.URL.Query().Get("token"), presented) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}
