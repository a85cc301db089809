package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/mx-space/dualpanel/internal/pkg/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() { gin.SetMode(gin.TestMode) }

func allow(c *gin.Context) { c.Next() }

func deny(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }

func newRouter(t *testing.T, authMW gin.HandlerFunc) *gin.Engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	sched := cron.New(zaptest.NewLogger(t))
	sched.Register(cron.Job{Name: "noop", Interval: time.Hour, Fn: func(context.Context) error { return nil }})

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), db, sched, authMW)
	return r
}

func get(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	t.Parallel()

	r := newRouter(t, deny)
	w := get(r, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["database"])

	assert.Equal(t, http.StatusUnauthorized, get(r, http.MethodGet, "/api/v1/health/cron").Code)
}

func TestCronRoutes(t *testing.T) {
	t.Parallel()

	r := newRouter(t, allow)

	w := get(r, http.MethodGet, "/api/v1/health/cron")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []cron.ListItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "noop", list.Data[0].Name)

	assert.Equal(t, http.StatusAccepted, get(r, http.MethodPost, "/api/v1/health/cron/run/noop").Code)
	assert.Equal(t, http.StatusNotFound, get(r, http.MethodPost, "/api/v1/health/cron/run/missing").Code)

	require.Eventually(t, func() bool {
		w := get(r, http.MethodGet, "/api/v1/health/cron/task/noop")
		var task cron.TaskResult
		return w.Code == http.StatusOK &&
			json.Unmarshal(w.Body.Bytes(), &task) == nil &&
			task.Status == cron.StatusFulfill
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/api/v1/health/cron/task/missing").Code)
}
