package server

import (
	_ "embed"
	"net/http"
)

//go:embed decoy.html
var decoyPage []byte

// handleDecoy answers every path outside the tunnel surface with the lab
// page, so probing the relay looks like hitting an ordinary static site.
func (s *Server) handleDecoy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(decoyPage)
}
