package device

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/relayhq/pushcore/internal/errors"
	"github.com/relayhq/pushcore/internal/push"
)

// Handler exposes the device registry collaborator surface: target upserts
// and capability updates for future dispatches.
type Handler struct {
	store Store
}

// NewHandler creates the device HTTP handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// UpsertTargetRequest registers or replaces a device target.
type UpsertTargetRequest struct {
	SiteID       string            `json:"site_id"`
	Platform     string            `json:"platform" binding:"required"`
	Token        string            `json:"token" binding:"required"`
	Tokens       map[string]string `json:"tokens"`
	Capabilities []string          `json:"capabilities" binding:"required,min=1"`
}

// UpsertTarget handles device registration and token rotation.
// PUT /api/v1/devices/:deviceID.
func (h *Handler) UpsertTarget(c *gin.Context) {
	deviceID := c.Param("deviceID")

	var req UpsertTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "platform, token and capabilities required", nil)
		return
	}

	platform, err := push.ParsePlatform(req.Platform)
	if err != nil {
		apierrors.BadRequest(c, err.Error(), nil)
		return
	}

	capabilities, err := parseCapabilities(req.Capabilities)
	if err != nil {
		apierrors.BadRequest(c, err.Error(), nil)
		return
	}

	target := &push.DeviceTarget{
		DeviceID:     deviceID,
		SiteID:       req.SiteID,
		Platform:     platform,
		Token:        req.Token,
		Capabilities: capabilities,
		Active:       true,
	}
	if len(req.Tokens) > 0 {
		target.Tokens = make(map[push.Platform]string, len(req.Tokens))
		for k, v := range req.Tokens {
			p, err := push.ParsePlatform(k)
			if err != nil {
				apierrors.BadRequest(c, err.Error(), nil)
				return
			}
			target.Tokens[p] = v
		}
	}

	if err := h.store.Upsert(c.Request.Context(), target); err != nil {
		apierrors.Internal(c, "failed to save device target", nil)
		return
	}

	c.JSON(http.StatusOK, target)
}

// UpdateCapabilitiesRequest replaces the ordered platform preference list.
type UpdateCapabilitiesRequest struct {
	Capabilities []string `json:"capabilities" binding:"required,min=1"`
}

// UpdateCapabilities changes routing candidate order for future dispatches;
// in-flight delivery records are unaffected.
// PUT /api/v1/devices/:deviceID/capabilities.
func (h *Handler) UpdateCapabilities(c *gin.Context) {
	deviceID := c.Param("deviceID")

	var req UpdateCapabilitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "capabilities required", nil)
		return
	}

	capabilities, err := parseCapabilities(req.Capabilities)
	if err != nil {
		apierrors.BadRequest(c, err.Error(), nil)
		return
	}

	if err := h.store.UpdateCapabilities(c.Request.Context(), deviceID, capabilities); err != nil {
		if errors.Is(err, ErrNotFound) {
			apierrors.NotFound(c, "unknown device", nil)
			return
		}
		apierrors.Internal(c, "failed to update capabilities", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "capabilities": capabilities})
}

// GetTarget returns the stored target for one device.
// GET /api/v1/devices/:deviceID.
func (h *Handler) GetTarget(c *gin.Context) {
	target, err := h.store.Get(c.Request.Context(), c.Param("deviceID"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierrors.NotFound(c, "unknown device", nil)
			return
		}
		apierrors.Internal(c, "failed to load device target", nil)
		return
	}
	c.JSON(http.StatusOK, target)
}

func parseCapabilities(raw []string) ([]push.Platform, error) {
	out := make([]push.Platform, 0, len(raw))
	for _, s := range raw {
		p, err := push.ParsePlatform(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
