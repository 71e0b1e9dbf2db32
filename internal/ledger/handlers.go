package ledger

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apierrors "github.com/relayhq/pushcore/internal/errors"
)

// Handler exposes the acknowledgment endpoint.
type Handler struct {
	service *Service
}

// NewHandler creates the ledger HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// AcknowledgeRequest is the device-side acknowledgment body. ReceivedAt is
// unix milliseconds as reported by the device; zero means "use server time".
type AcknowledgeRequest struct {
	MessageID  string `json:"message_id" binding:"required"`
	ReceivedAt int64  `json:"received_at"`
}

// Acknowledge closes the delivery loop for one message. Idempotent, and by
// design requires no device authentication beyond knowledge of a
// previously-issued message id.
// POST /api/v1/ack.
func (h *Handler) Acknowledge(c *gin.Context) {
	var req AcknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "message_id required", nil)
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt > 0 {
		receivedAt = time.UnixMilli(req.ReceivedAt).UTC()
	}

	if err := h.service.Acknowledge(c.Request.Context(), req.MessageID, receivedAt); err != nil {
		if errors.Is(err, ErrUnknownMessage) {
			c.JSON(http.StatusNotFound, gin.H{"accepted": false, "error": "unknown message"})
			return
		}
		apierrors.Internal(c, "failed to acknowledge message", map[string]interface{}{
			"message_id": req.MessageID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// GetRecord returns one delivery record for diagnostics.
// GET /api/v1/messages/:messageID.
func (h *Handler) GetRecord(c *gin.Context) {
	messageID := c.Param("messageID")

	rec, err := h.service.Store().Get(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierrors.NotFound(c, "unknown message", nil)
			return
		}
		apierrors.Internal(c, "failed to load record", nil)
		return
	}

	c.JSON(http.StatusOK, rec)
}
