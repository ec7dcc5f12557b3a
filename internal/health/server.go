// Package health serves the HTTP liveness endpoint, reporting
// per-dependency status.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/observatory-sec/observatory/internal/store"
)

var startTime = time.Now()

// ConnectionChecker reports whether an outbound connection is up. The
// NATS publisher satisfies it; embedded modes pass nil to skip the check.
type ConnectionChecker interface {
	IsConnected() bool
}

type HealthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Store         string `json:"store"`
	EventBus      string `json:"event_bus,omitempty"`
	Error         string `json:"error,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     int64  `json:"timestamp"`
}

// HealthServer answers /health by pinging the store and, when one is
// attached, the event bus connection.
type HealthServer struct {
	store    store.Store
	eventbus ConnectionChecker
	server   *http.Server
}

func NewHealthServer(s store.Store, eventbus ConnectionChecker) *HealthServer {
	return &HealthServer{
		store:    s,
		eventbus: eventbus,
	}
}

// Handler returns the route mux, for serving and tests.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthCheckHandler)
	return mux
}

func (h *HealthServer) Start(addr string) error {
	h.server = &http.Server{
		Addr:    addr,
		Handler: h.Handler(),
	}

	return h.server.ListenAndServe()
}

func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server != nil {
		return h.server.Shutdown(ctx)
	}
	return nil
}

func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := &HealthResponse{
		Status:        "healthy",
		Service:       "observatory",
		Store:         "connected",
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Timestamp:     time.Now().Unix(),
	}

	if err := h.store.HealthCheck(r.Context()); err != nil {
		response.Status = "unhealthy"
		response.Store = "disconnected"
		response.Error = err.Error()
	}

	if h.eventbus != nil {
		response.EventBus = "connected"
		if !h.eventbus.IsConnected() {
			response.Status = "unhealthy"
			response.EventBus = "disconnected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}
