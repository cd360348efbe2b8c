package routes

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	appmw "github.com/tom2tomtomtom/airwave/internal/http/middleware"
)

// handleLogin exchanges a signed admin token (form field "token") for a
// session cookie
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad form")
		return
	}
	tok := strings.TrimSpace(r.Form.Get("token"))
	if tok == "" {
		writeError(w, r, http.StatusBadRequest, "token required")
		return
	}

	subject, err := s.Signer.Verify(tok)
	if err != nil {
		hlog.FromRequest(r).Info().Err(err).Msg("login rejected")
		writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	if s.Sess == nil {
		writeError(w, r, http.StatusNotImplemented, "sessions are disabled")
		return
	}
	if err := s.Sess.RenewToken(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("renew session token")
		writeError(w, r, http.StatusInternalServerError, "could not start session")
		return
	}
	s.Sess.Put(r.Context(), appmw.SessionSubjectKey, subject)
	writeJSON(w, r, http.StatusOK, map[string]string{"subject": subject})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.Sess != nil {
		if err := s.Sess.Destroy(r.Context()); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("destroy session")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
