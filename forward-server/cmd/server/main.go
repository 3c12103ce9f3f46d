package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goforward/forward-server/internal/audit"
	"goforward/forward-server/internal/auth"
	"goforward/forward-server/internal/cache"
	"goforward/forward-server/internal/config"
	"goforward/forward-server/internal/dispatcher"
	"goforward/forward-server/internal/health"
	"goforward/forward-server/internal/httpserver"
	"goforward/forward-server/internal/metrics"
	"goforward/forward-server/internal/monitoring"
	"goforward/forward-server/internal/pending"
	"goforward/forward-server/internal/plattform"
	"goforward/forward-server/internal/pool"
	"goforward/forward-server/internal/presence"
	"goforward/forward-server/internal/source"
	"goforward/forward-server/internal/wsserver"
	"goforward/pkg/styles"
	"goforward/pkg/types"
)

const auditBuffer = 1024

// gateway expone el estado del núcleo a /monitoring.
type gateway struct {
	ws    *wsserver.Server
	table *pending.Table
	disp  *dispatcher.Dispatcher
}

func (g gateway) Workers() []types.WorkerInfo { return g.ws.Workers() }
func (g gateway) Pending() int                { return g.table.Len() }
func (g gateway) ReplyTimeout() time.Duration { return g.disp.Timeout() }

func main() {
	cfg, err := config.Load(os.Getenv("FORWARD_CONFIG"))
	if err != nil {
		log.Fatal(styles.SprintfS("error", "[CONFIG] %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	dispatchObservers := []dispatcher.Observer{collector}
	wsObservers := []wsserver.Observer{collector}
	deps := map[string]health.Pinger{}

	// ---- Redis (presencia) ----
	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		styles.PrintFS("error", "[REDIS] Sin presencia en Redis: %v", err)
	}
	if rdb != nil {
		tracker := presence.NewRedisTracker(rdb, cfg.Redis.WorkerTTL)
		wsObservers = append(wsObservers, tracker)
		deps["redis"] = tracker
		defer rdb.Close()
	}

	// ---- MQTT (eventos de alta/baja) ----
	if cfg.MQTT.Broker != "" {
		mq, err := presence.ConnectMQTT(cfg.MQTT)
		if err != nil {
			styles.PrintFS("error", "[MQTT] Sin eventos MQTT: %v", err)
		} else {
			wsObservers = append(wsObservers, presence.NewMQTTTracker(mq, cfg.MQTT.Topic))
			defer mq.Disconnect(250)
		}
	}

	// ---- MongoDB (auditoría + operadores) ----
	var (
		mongoSvc    *plattform.MongoService
		recorder    *audit.Recorder
		authHandler *auth.Handler
	)
	if cfg.Mongo.URI != "" {
		mongoSvc, err = plattform.ConnectWithRetry(ctx, cfg.Mongo)
		if err != nil {
			styles.PrintFS("error", "[MONGO] Sin auditoría ni cuentas de operador: %v", err)
		}
	}
	tokens := auth.NewJWTTokenManager(cfg.Auth.JWTSecret)
	if mongoSvc != nil {
		deps["mongodb"] = mongoSvc
		recorder = audit.NewRecorder(audit.NewMongoStore(mongoSvc.Collection(audit.CollectionName)), auditBuffer)
		dispatchObservers = append(dispatchObservers, recorder)

		repo := auth.NewMongoRepository(mongoSvc.Collection(auth.CollectionName))
		authHandler = auth.NewHandler(auth.NewService(repo, tokens))
	} else if cfg.Auth.Required {
		log.Fatal(styles.SprintfS("error", "[AUTH] auth.required necesita MongoDB para las cuentas de operador"))
	}

	// ---- núcleo ----
	registry := pool.NewRegistry()
	table := pending.NewTable()
	router := dispatcher.NewRouter(table)
	router.OnLateReply = collector.IncLateReply
	disp := dispatcher.New(registry, table, cfg.ReplyTimeout, dispatchObservers...)

	ws := wsserver.NewServer(registry, router, wsserver.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		SendQueueSize:     cfg.SendQueueSize,
	}, wsObservers...).WithStats(collector)

	// ---- fuentes de frames ----
	var frames source.Multi
	if cfg.Source.FrameDir != "" {
		frames = append(frames, source.NewDirSource(cfg.Source.FrameDir))
	}
	if len(cfg.Source.SnapshotURLs) > 0 {
		frames = append(frames, source.NewSnapshotSource(cfg.Source.SnapshotURLs))
	}
	var src source.FrameSource
	if len(frames) > 0 {
		src = frames
	}

	gw := gateway{ws: ws, table: table, disp: disp}
	engine := httpserver.NewRouter(httpserver.Deps{
		Dispatcher:     disp,
		WorkerEndpoint: ws,
		Workers:        ws.Workers,
		Source:         src,
		Auth:           authHandler,
		Tokens:         tokens,
		AuthRequired:   cfg.Auth.Required,
		Health:         health.NewService(ws, deps),
		Monitoring:     monitoring.NewService(gw),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Print(styles.SprintfS("info", "[HTTP] Escuchando en %s (timeout de respuesta %s)", cfg.HTTPAddr, cfg.ReplyTimeout))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		styles.PrintFS("warn", "[HTTP] Señal recibida, apagando...")
	case err := <-errCh:
		if err != nil {
			styles.PrintFS("error", "[HTTP] Error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// los upgrades ya hechos no cuentan para srv.Shutdown: se cierran aparte
	if err := srv.Shutdown(shutdownCtx); err != nil {
		styles.PrintFS("error", "[HTTP] Shutdown: %v", err)
	}
	if err := ws.Shutdown(shutdownCtx); err != nil {
		styles.PrintFS("error", "[WS] Shutdown: %v", err)
	}
	if recorder != nil {
		if err := recorder.Close(shutdownCtx); err != nil {
			styles.PrintFS("error", "[AUDIT] Close: %v", err)
		}
	}
	if mongoSvc != nil {
		if err := mongoSvc.Disconnect(shutdownCtx); err != nil {
			styles.PrintFS("error", "[MONGO] Disconnect: %v", err)
		}
	}
	styles.PrintFS("success", "[HTTP] Servidor detenido")
}
