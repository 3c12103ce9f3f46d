package health

import (
	"context"
	"net/http"
	"time"

	"goforward/pkg/types"

	"github.com/gin-gonic/gin"
)

type Status struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]interface{} `json:"services"`
}

// Pinger es cualquier dependencia externa que sepa responder un ping
// (MongoDB, Redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerLister lista los workers conectados (wsserver.Server).
type WorkerLister interface {
	Workers() []types.WorkerInfo
}

type Service interface {
	Check(ctx context.Context) Status
}

type healthService struct {
	deps    map[string]Pinger
	workers WorkerLister
}

// NewService recibe solo las dependencias configuradas; las que no están
// en deps se reportan como "disabled".
func NewService(workers WorkerLister, deps map[string]Pinger) Service {
	return &healthService{
		deps:    deps,
		workers: workers,
	}
}

func (s *healthService) Check(ctx context.Context) Status {
	services := make(map[string]interface{})
	overallStatus := "ok"

	for _, name := range []string{"mongodb", "redis"} {
		p, ok := s.deps[name]
		if !ok || p == nil {
			services[name] = map[string]string{"status": "disabled"}
			continue
		}
		depStatus := "ok"
		if err := p.Ping(ctx); err != nil {
			depStatus = "down"
			overallStatus = "degraded"
		}
		services[name] = map[string]string{"status": depStatus}
	}

	// sin workers el gateway responde 503 a todo
	workerCount := len(s.workers.Workers())
	wsStatus := "ok"
	if workerCount == 0 {
		wsStatus = "no_workers"
		overallStatus = "degraded"
	}
	services["ws_server"] = map[string]interface{}{
		"status":       wsStatus,
		"worker_count": workerCount,
	}

	return Status{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
	}
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/health", h.HealthCheck)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	status := h.svc.Check(c.Request.Context())
	httpStatus := http.StatusOK
	if status.Status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, status)
}
