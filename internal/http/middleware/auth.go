package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	scs "github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog/hlog"

	"github.com/tom2tomtomtom/airwave/internal/auth"
)

type contextKey string

const SubjectKey contextKey = "subject"

// SessionSubjectKey is the session field holding the signed-in subject
const SessionSubjectKey = "subject"

// Subject returns the authenticated subject stored by RequireAuth
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(SubjectKey).(string)
	return s
}

// RequireAuth accepts a session established by /login or an
// "Authorization: Bearer <token>" header signed by signer.
func RequireAuth(sess *scs.SessionManager, signer auth.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := ""
			if sess != nil {
				subject = sess.GetString(r.Context(), SessionSubjectKey)
			}
			if subject == "" {
				if tok, ok := bearer(r); ok {
					s, err := signer.Verify(tok)
					if err != nil {
						hlog.FromRequest(r).Debug().Err(err).Msg("bearer token rejected")
					}
					subject = s
				}
			}
			if subject == "" {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="airwave"`)
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), SubjectKey, subject)))
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}
