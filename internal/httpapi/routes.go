package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"balance-scale-client/internal/session"
)

// SetupRoutes builds the local read-only observation surface. Everything
// here reads the projection; nothing mutates session state.
func SetupRoutes(s *session.Session, inviteBase string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/state", CurrentState(s))
	r.Get("/invite", InviteLink(s, inviteBase, log))
	return r
}
