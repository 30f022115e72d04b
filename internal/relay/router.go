package relay

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

// NewRouter exposes the relay over HTTP: the websocket endpoint and a
// health check, with access logging on every request.
func NewRouter(h *Hub, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, req)
			log.Info("handled", "method", req.Method, "url", req.URL.Path, "duration", m.Duration, "status", m.Code)
		})
	})

	r.HandleFunc("/ws", h.ServeWS)
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}
