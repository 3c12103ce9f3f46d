package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"goforward/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type staticWorkers []types.WorkerInfo

func (s staticWorkers) Workers() []types.WorkerInfo { return s }

func get(t *testing.T, svc Service) (int, Status) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group(""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return w.Code, st
}

func TestHealth_OKWithWorkers(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	svc := NewService(staticWorkers{{ID: "w1"}}, map[string]Pinger{"mongodb": ok})

	code, st := get(t, svc)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, map[string]interface{}{"status": "disabled"}, st.Services["redis"])
	ws := st.Services["ws_server"].(map[string]interface{})
	assert.Equal(t, float64(1), ws["worker_count"])
}

func TestHealth_DegradedWhenDependencyDown(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("refused") })
	svc := NewService(staticWorkers{{ID: "w1"}}, map[string]Pinger{"redis": down})

	code, st := get(t, svc)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", st.Status)
	assert.Equal(t, map[string]interface{}{"status": "down"}, st.Services["redis"])
}

func TestHealth_DegradedWithoutWorkers(t *testing.T) {
	code, st := get(t, NewService(staticWorkers{}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	ws := st.Services["ws_server"].(map[string]interface{})
	assert.Equal(t, "no_workers", ws["status"])
}
