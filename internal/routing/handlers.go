package routing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/relayhq/pushcore/internal/errors"
	"github.com/relayhq/pushcore/internal/provider"
	"github.com/relayhq/pushcore/internal/push"
)

// Handler exposes the dispatch surface to the orchestration collaborator.
type Handler struct {
	engine *Engine
}

// NewHandler creates the routing HTTP handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// DispatchRequest asks for one payload to be delivered to one device.
type DispatchRequest struct {
	DeviceID string        `json:"device_id" binding:"required"`
	Payload  *push.Payload `json:"payload" binding:"required"`
}

// Dispatch routes one notification.
// POST /api/v1/dispatch.
func (h *Handler) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "device_id and payload required", nil)
		return
	}

	result, err := h.engine.Dispatch(c.Request.Context(), req.DeviceID, req.Payload)
	if err != nil {
		h.writeDispatchError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BulkDispatchRequest carries a batch of dispatches.
type BulkDispatchRequest struct {
	Items []DispatchRequest `json:"items" binding:"required,min=1,max=1000"`
}

// DispatchBulk routes a batch through each device's primary provider.
// Partial failure is expected; the response reports every item.
// POST /api/v1/dispatch/bulk.
func (h *Handler) DispatchBulk(c *gin.Context) {
	var req BulkDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "items required", nil)
		return
	}

	items := make([]BulkRequestItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = BulkRequestItem{DeviceID: item.DeviceID, Payload: item.Payload}
	}

	results := h.engine.DispatchBulk(c.Request.Context(), items)
	c.JSON(http.StatusOK, gin.H{"items": results})
}

func (h *Handler) writeDispatchError(c *gin.Context, err error) {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		switch dispatchErr.Code {
		case provider.ErrorThrottled:
			apierrors.TooManyRequests(c, "provider throttled", dispatchErr.RetryAfterSeconds)
		case provider.ErrorPayloadTooLarge:
			c.JSON(http.StatusRequestEntityTooLarge, apierrors.NewAPIError("payload too large for all routable providers", nil))
		default:
			apierrors.BadGateway(c, "all delivery candidates failed", map[string]interface{}{
				"attempts": dispatchErr.Attempts,
			})
		}
		return
	}

	switch {
	case errors.Is(err, ErrUnknownDevice):
		apierrors.NotFound(c, "unknown device", nil)
	case errors.Is(err, ErrDeviceInactive):
		apierrors.Conflict(c, "device has no active transports", nil)
	default:
		apierrors.BadRequest(c, err.Error(), nil)
	}
}
