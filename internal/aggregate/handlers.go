package aggregate

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apierrors "github.com/relayhq/pushcore/internal/errors"
	"github.com/relayhq/pushcore/internal/ledger"
	"github.com/relayhq/pushcore/internal/push"
)

// Handler exposes the windowed statistics query.
type Handler struct {
	service *Service
}

// NewHandler creates the aggregate HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Stats returns delivery-rate, latency-percentile and fallback-rate figures
// for a time window, optionally filtered by provider, site or device.
// GET /api/v1/stats?from=RFC3339&to=RFC3339&provider=&site_id=&device_id=.
func (h *Handler) Stats(c *gin.Context) {
	var f ledger.Filter

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierrors.BadRequest(c, "from must be RFC3339", nil)
			return
		}
		f.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierrors.BadRequest(c, "to must be RFC3339", nil)
			return
		}
		f.To = t
	}
	if raw := c.Query("provider"); raw != "" {
		platform, err := push.ParsePlatform(raw)
		if err != nil {
			apierrors.BadRequest(c, err.Error(), nil)
			return
		}
		f.Provider = platform
	}
	f.SiteID = c.Query("site_id")
	f.DeviceID = c.Query("device_id")

	stats, err := h.service.Query(c.Request.Context(), f)
	if err != nil {
		apierrors.Internal(c, "failed to compute statistics", nil)
		return
	}

	c.JSON(http.StatusOK, stats)
}
