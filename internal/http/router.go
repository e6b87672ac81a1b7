package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
)

// RouterConfig wires the handlers and middleware served by NewRouter.
type RouterConfig struct {
	Meetings *MeetingHandler
	// Relay, when set, is mounted at /ws outside response compression.
	Relay http.Handler
	// Health reports backend readiness for /healthz. Nil always reports ok.
	Health     func(ctx context.Context) error
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(notFound)
	root.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	root.HandleFunc("/healthz", healthHandler(cfg.Health)).Methods(http.MethodGet)

	if cfg.Relay != nil {
		root.Handle("/ws", cfg.Relay).Methods(http.MethodGet)
	}

	if h := cfg.Meetings; h != nil {
		api := root.PathPrefix("/api/meetings").Subrouter()
		api.Use(mux.MiddlewareFunc(gzipMiddleware))

		api.HandleFunc("", h.Create).Methods(http.MethodPost)

		meeting := api.PathPrefix("/{id}").Subrouter()
		meeting.HandleFunc("", h.Get).Methods(http.MethodGet)
		meeting.HandleFunc("/best-slots", h.BestSlots).Methods(http.MethodGet)
		meeting.HandleFunc("/heatmap", h.Heatmap).Methods(http.MethodGet)
		meeting.HandleFunc("/admin", h.ValidateAdmin).Methods(http.MethodPost)
		meeting.HandleFunc("/status", h.SetStatus).Methods(http.MethodPut)
		meeting.HandleFunc("/finalize", h.Finalize).Methods(http.MethodPost)

		meeting.HandleFunc("/participants/{pid}", h.DeleteParticipant).Methods(http.MethodDelete)
		meeting.HandleFunc("/participants/{pid}/claim", h.Claim).Methods(http.MethodPost)
		meeting.HandleFunc("/participants/{pid}/force-claim", h.ForceClaim).Methods(http.MethodPost)
		meeting.HandleFunc("/participants/{pid}/session", h.ValidateSession).Methods(http.MethodPost)
		meeting.HandleFunc("/participants/{pid}/session", h.ResetSession).Methods(http.MethodDelete)
		meeting.HandleFunc("/participants/{pid}/slots", h.UpdateAvailability).Methods(http.MethodPut)

		meeting.HandleFunc("/guest-requests", h.RequestGuest).Methods(http.MethodPost)
		meeting.HandleFunc("/guest-requests/{rid}/approve", h.ApproveGuest).Methods(http.MethodPost)
		meeting.HandleFunc("/guest-requests/{rid}/reject", h.RejectGuest).Methods(http.MethodPost)
	}

	var handler http.Handler = root
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

func gzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	responder := newResponder(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func notFound(w http.ResponseWriter, r *http.Request) {
	newResponder(nil).writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", nil)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	newResponder(nil).writeError(r.Context(), w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", nil)
}
