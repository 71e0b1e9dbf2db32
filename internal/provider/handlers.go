package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relayhq/pushcore/internal/push"
)

// healthProbeTimeout bounds the whole health fan-in.
const healthProbeTimeout = 5 * time.Second

// Handler exposes provider health over HTTP.
type Handler struct {
	registry *Registry
}

// NewHandler creates the provider HTTP handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Health fans in every registered provider's health probe. The endpoint is
// 200 while at least one transport is usable, 503 otherwise.
// GET /health.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	providers := make(map[push.Platform]Health)
	anyUp := false
	for _, platform := range h.registry.Platforms() {
		prov, err := h.registry.Resolve(platform)
		if err != nil {
			continue
		}
		health := prov.HealthCheck(ctx)
		providers[platform] = health
		if health.Status == "ok" {
			anyUp = true
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !anyUp {
		status = http.StatusServiceUnavailable
		overall = "down"
	}

	c.JSON(status, gin.H{"status": overall, "providers": providers})
}
