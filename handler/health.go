package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common"
	"github.com/LexiconIndonesia/creator-crawler-service/common/utils"
	"github.com/go-chi/chi/v5"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	deps   map[string]Pinger
	router *chi.Mux
}

// NewHealthHandler pings every non-nil dependency in deps, keyed by name.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	h := &HealthHandler{deps: map[string]Pinger{}}
	for name, p := range deps {
		if p != nil {
			h.deps[name] = p
		}
	}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)
	r.Get("/dependencies", h.handleDependencies)

	h.router = r
	return h
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

// @Summary     Health check
// @Tags        system
// @Produce     json
// @Success     200 {object} models.BaseResponse{data=object}
// @Security    ApiKeyAuth
// @Router      /health [get]
func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   common.AppName,
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

// @Summary     Dependency health
// @Description Pings the database, Redis and NATS.
// @Tags        system
// @Produce     json
// @Success     200 {object} models.BaseResponse{data=object}
// @Failure     503 {object} models.BaseResponse{data=object}
// @Security    ApiKeyAuth
// @Router      /health/dependencies [get]
func (h *HealthHandler) handleDependencies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]interface{}, len(h.deps))
	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
			continue
		}
		deps[name] = map[string]interface{}{"status": "healthy"}
	}

	response := map[string]interface{}{
		"status":       "healthy",
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	}
	if status != http.StatusOK {
		response["status"] = "unhealthy"
	}
	utils.WriteJSON(w, status, response)
}
