package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"goforward/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type SystemStats struct {
	// Process specific
	NumGoroutine int    `json:"num_goroutine"`
	Alloc        uint64 `json:"alloc_bytes"`
	Sys          uint64 `json:"sys_bytes"`
	NumGC        uint32 `json:"num_gc"`

	// System wide
	TotalRAM        uint64                 `json:"total_ram"`
	AvailableRAM    uint64                 `json:"available_ram"`
	UsedRAMPercent  float64                `json:"used_ram_percent"`
	TotalCPUCores   int                    `json:"total_cpu_cores"`
	CPUUsagePercent []float64              `json:"cpu_usage_percent"`
	CPUTemperatures []host.TemperatureStat `json:"cpu_temperatures"`
}

type MonitoringStatus struct {
	Timestamp       time.Time          `json:"timestamp"`
	Workers         []types.WorkerInfo `json:"workers"`
	PendingRequests int                `json:"pending_requests"`
	ReplyTimeout    string             `json:"reply_timeout"`
	System          SystemStats        `json:"system"`
}

// Gateway es la vista del estado del gateway que necesita el monitoreo.
type Gateway interface {
	Workers() []types.WorkerInfo
	Pending() int
	ReplyTimeout() time.Duration
}

type Service interface {
	GetStatus(ctx context.Context) MonitoringStatus
}

type monitoringService struct {
	gw Gateway
}

func NewService(gw Gateway) Service {
	return &monitoringService{gw: gw}
}

func (s *monitoringService) GetStatus(ctx context.Context) MonitoringStatus {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	vMem, _ := mem.VirtualMemoryWithContext(ctx)
	cpuPercent, _ := cpu.PercentWithContext(ctx, 0, true) // per cpu
	temps, _ := host.SensorsTemperaturesWithContext(ctx)

	sysStats := SystemStats{
		NumGoroutine:    runtime.NumGoroutine(),
		Alloc:           memStats.Alloc,
		Sys:             memStats.Sys,
		NumGC:           memStats.NumGC,
		TotalCPUCores:   runtime.NumCPU(),
		CPUUsagePercent: cpuPercent,
		CPUTemperatures: temps,
	}

	if vMem != nil {
		sysStats.TotalRAM = vMem.Total
		sysStats.AvailableRAM = vMem.Available
		sysStats.UsedRAMPercent = vMem.UsedPercent
	}

	workers := s.gw.Workers()
	if workers == nil {
		workers = []types.WorkerInfo{}
	}

	return MonitoringStatus{
		Timestamp:       time.Now(),
		Workers:         workers,
		PendingRequests: s.gw.Pending(),
		ReplyTimeout:    s.gw.ReplyTimeout().String(),
		System:          sysStats,
	}
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/monitoring", h.GetMonitoringStatus)
}

func (h *Handler) GetMonitoringStatus(c *gin.Context) {
	status := h.svc.GetStatus(c.Request.Context())
	c.JSON(http.StatusOK, status)
}
