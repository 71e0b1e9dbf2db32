package device

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhq/pushcore/internal/push"
)

func setupDeviceRouter(t *testing.T) (*gin.Engine, *MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	handler := NewHandler(store)

	router := gin.New()
	router.PUT("/api/v1/devices/:deviceID", handler.UpsertTarget)
	router.GET("/api/v1/devices/:deviceID", handler.GetTarget)
	router.PUT("/api/v1/devices/:deviceID/capabilities", handler.UpdateCapabilities)
	return router, store
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestUpsertTargetEndpoint(t *testing.T) {
	router, store := setupDeviceRouter(t)

	t.Run("registers a device", func(t *testing.T) {
		w := doJSON(router, http.MethodPut, "/api/v1/devices/dev-1", `{
			"site_id": "site-9",
			"platform": "fcm",
			"token": "fcm-tok",
			"tokens": {"nats": "device.inbox.1"},
			"capabilities": ["fcm", "nats"]
		}`)
		require.Equal(t, http.StatusOK, w.Code)

		target, err := store.Get(context.Background(), "dev-1")
		require.NoError(t, err)
		assert.Equal(t, push.PlatformFCM, target.Platform)
		assert.Equal(t, "site-9", target.SiteID)
		assert.Equal(t, "device.inbox.1", target.Tokens[push.PlatformNATS])
		assert.True(t, target.Active)
	})

	t.Run("token rotation replaces the record", func(t *testing.T) {
		w := doJSON(router, http.MethodPut, "/api/v1/devices/dev-1", `{
			"platform": "fcm",
			"token": "rotated-tok",
			"capabilities": ["fcm"]
		}`)
		require.Equal(t, http.StatusOK, w.Code)

		target, err := store.Get(context.Background(), "dev-1")
		require.NoError(t, err)
		assert.Equal(t, "rotated-tok", target.Token)
		assert.Equal(t, []push.Platform{push.PlatformFCM}, target.Capabilities)
	})

	t.Run("unknown platform rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodPut, "/api/v1/devices/dev-2", `{
			"platform": "apns",
			"token": "x",
			"capabilities": ["apns"]
		}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		w := doJSON(router, http.MethodPut, "/api/v1/devices/dev-2", `{
			"platform": "fcm",
			"capabilities": ["fcm"]
		}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateCapabilitiesEndpoint(t *testing.T) {
	router, store := setupDeviceRouter(t)
	doJSON(router, http.MethodPut, "/api/v1/devices/dev-1", `{
		"platform": "fcm",
		"token": "tok",
		"capabilities": ["fcm", "nats"]
	}`)

	w := doJSON(router, http.MethodPut, "/api/v1/devices/dev-1/capabilities",
		`{"capabilities": ["nats", "fcm"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	target, err := store.Get(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, []push.Platform{push.PlatformNATS, push.PlatformFCM}, target.Capabilities)

	w = doJSON(router, http.MethodPut, "/api/v1/devices/ghost/capabilities",
		`{"capabilities": ["fcm"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodPut, "/api/v1/devices/dev-1/capabilities",
		`{"capabilities": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTargetEndpoint(t *testing.T) {
	router, _ := setupDeviceRouter(t)
	doJSON(router, http.MethodPut, "/api/v1/devices/dev-1", `{
		"platform": "nats",
		"token": "device.inbox.1",
		"capabilities": ["nats"]
	}`)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices/dev-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var target push.DeviceTarget
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &target))
	assert.Equal(t, "dev-1", target.DeviceID)
	assert.Equal(t, push.PlatformNATS, target.Platform)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices/ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
