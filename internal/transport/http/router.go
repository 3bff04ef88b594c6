package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"live-session-service/internal/app"
)

// NewRouter wires the websocket endpoint and the read-only session queries.
func NewRouter(service *app.SessionService, ws *WSHandler, allowedOrigins []string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &queryHandler{service: service, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.ServeWS)
	r.Get("/sessions/{code}", q.getSession)
	r.Get("/sessions/{code}/leaderboard", q.getLeaderboard)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	})
	return c.Handler(r)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

type queryHandler struct {
	service *app.SessionService
	logger  *zap.Logger
}

func (q *queryHandler) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := q.service.View(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		q.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (q *queryHandler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := q.service.Leaderboard(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		q.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app.LeaderboardPayload{Entries: entries, Total: len(entries)})
}

func (q *queryHandler) writeError(w http.ResponseWriter, err error) {
	_, status := errorCode(err)
	if status == http.StatusInternalServerError {
		q.logger.Error("session query failed", zap.Error(err))
	}
	writeJSON(w, status, toErrorPayload(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
