package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"goforward/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	workers []types.WorkerInfo
	pending int
}

func (f fakeGateway) Workers() []types.WorkerInfo { return f.workers }
func (f fakeGateway) Pending() int                { return f.pending }
func (f fakeGateway) ReplyTimeout() time.Duration { return time.Minute }

func TestMonitoring_ReportsGatewayState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	gw := fakeGateway{
		workers: []types.WorkerInfo{{ID: "w1", State: types.WorkerActive, InFlight: 2}},
		pending: 2,
	}
	NewHandler(NewService(gw)).RegisterRoutes(r.Group(""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/monitoring", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var st MonitoringStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Len(t, st.Workers, 1)
	assert.Equal(t, "w1", st.Workers[0].ID)
	assert.Equal(t, types.WorkerActive, st.Workers[0].State)
	assert.Equal(t, 2, st.PendingRequests)
	assert.Equal(t, "1m0s", st.ReplyTimeout)
	assert.Positive(t, st.System.NumGoroutine)
}

func TestMonitoring_EmptyWorkersIsArray(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	st := NewService(fakeGateway{}).GetStatus(ctx)
	assert.NotNil(t, st.Workers)
	assert.Empty(t, st.Workers)
}
