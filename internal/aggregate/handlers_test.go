package aggregate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhq/pushcore/internal/ledger"
	"github.com/relayhq/pushcore/internal/push"
)

func setupStatsRouter(t *testing.T) (*gin.Engine, *ledger.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	handler := NewHandler(NewService(store))

	router := gin.New()
	router.GET("/api/v1/stats", handler.Stats)
	return router, store
}

func getStats(router *gin.Engine, query string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats"+query, nil))
	return w
}

func TestStatsEndpoint(t *testing.T) {
	router, store := setupStatsRouter(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Insert(ctx, &ledger.Record{
		MessageID: "m-1", DeviceID: "dev-1", SiteID: "site-1",
		Provider: push.PlatformFCM, Status: ledger.StatusSent,
		TTLSeconds: 300, SentAt: now.Add(-time.Minute),
	}))
	updated, err := store.MarkDelivered(ctx, "m-1", now, 250)
	require.NoError(t, err)
	require.True(t, updated)

	require.NoError(t, store.Insert(ctx, &ledger.Record{
		MessageID: "m-2", DeviceID: "dev-2", SiteID: "site-2",
		Provider: push.PlatformNATS, Status: ledger.StatusSent,
		TTLSeconds: 300, SentAt: now.Add(-time.Minute),
	}))
	_, err = store.MarkFailed(ctx, "m-2", "SERVICE_UNAVAILABLE", "down")
	require.NoError(t, err)

	t.Run("whole window", func(t *testing.T) {
		w := getStats(router, "")
		require.Equal(t, http.StatusOK, w.Code)

		var stats Stats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, 2, stats.Total)
		assert.InDelta(t, 0.5, stats.DeliveryRate, 1e-9)
		assert.Equal(t, int64(250), stats.LatencyP50Ms)
	})

	t.Run("provider filter", func(t *testing.T) {
		w := getStats(router, "?provider=fcm")
		require.Equal(t, http.StatusOK, w.Code)

		var stats Stats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, 1, stats.Total)
		assert.Equal(t, 1.0, stats.DeliveryRate)
	})

	t.Run("window excluding everything", func(t *testing.T) {
		from := now.Add(time.Hour).Format(time.RFC3339)
		w := getStats(router, "?from="+from)
		require.Equal(t, http.StatusOK, w.Code)

		var stats Stats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Zero(t, stats.Total)
		assert.Zero(t, stats.DeliveryRate)
	})

	t.Run("bad timestamps rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, getStats(router, "?from=yesterday").Code)
		assert.Equal(t, http.StatusBadRequest, getStats(router, "?to=yesterday").Code)
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, getStats(router, "?provider=apns").Code)
	})
}
