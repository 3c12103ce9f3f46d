package httpserver

import (
	"context"
	"net/http"

	"goforward/forward-server/internal/auth"
	"goforward/forward-server/internal/health"
	"goforward/forward-server/internal/monitoring"
	"goforward/forward-server/internal/source"
	"goforward/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMaxBodySize = 32 << 20

// Dispatcher es lo único que los handlers necesitan del núcleo del gateway.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload []byte) ([]byte, error)
}

// Deps agrupa lo que el router expone. Los campos nil desactivan sus rutas.
type Deps struct {
	Dispatcher Dispatcher
	// WorkerEndpoint atiende el upgrade websocket de los workers.
	WorkerEndpoint http.Handler
	Workers        func() []types.WorkerInfo
	Source         source.FrameSource

	Auth         *auth.Handler
	Tokens       auth.TokenManager
	AuthRequired bool

	Health     health.Service
	Monitoring monitoring.Service

	MaxBodySize int64
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()

	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	if d.MaxBodySize <= 0 {
		d.MaxBodySize = defaultMaxBodySize
	}

	if d.WorkerEndpoint != nil {
		r.GET("/ws_connect", gin.WrapH(d.WorkerEndpoint))
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if d.Health != nil {
		health.NewHandler(d.Health).RegisterRoutes(r.Group(""))
	}
	if d.Monitoring != nil {
		monitoring.NewHandler(d.Monitoring).RegisterRoutes(r.Group(""))
	}

	if d.Auth != nil {
		d.Auth.RegisterRoutes(r.Group("/api/auth"))
	}

	jobs := r.Group("")
	if d.AuthRequired && d.Tokens != nil {
		jobs.Use(auth.AuthMiddleware(d.Tokens))
	}
	h := &jobHandler{
		dispatcher:  d.Dispatcher,
		source:      d.Source,
		workers:     d.Workers,
		maxBodySize: d.MaxBodySize,
	}
	h.RegisterRoutes(jobs)

	return r
}
