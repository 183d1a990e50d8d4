package server

import (
	"net/http"

	"github.com/Tyrowin/chatroom/internal/metrics"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for health check, WebSocket endpoint, test page and metrics.
func SetupRoutes(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(h))
	mux.HandleFunc("/test", TestPageHandler)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
