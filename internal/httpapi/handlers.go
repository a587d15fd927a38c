package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"balance-scale-client/internal/engine"
	"balance-scale-client/internal/session"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// CurrentState serves the live projection as JSON for local inspection.
func CurrentState(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.CurrentView(r.Context())
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Version int          `json:"version"`
			State   engine.State `json:"state"`
		}{Version: view.Version, State: view.State})
	}
}

// InviteLink returns the shareable URL for the current lobby, or 404 when
// no lobby has been joined yet.
func InviteLink(s *session.Session, inviteBase string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := s.CurrentView(r.Context())
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		if view.State.LobbyID == "" {
			http.Error(w, "no lobby joined", http.StatusNotFound)
			return
		}

		url, err := engine.InviteURL(inviteBase, view.State.LobbyID)
		if err != nil {
			log.Warn("invite url", zap.Error(err))
			http.Error(w, "bad invite base", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			URL string `json:"url"`
		}{URL: url})
	}
}
