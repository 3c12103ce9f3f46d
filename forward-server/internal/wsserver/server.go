package wsserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"goforward/forward-server/internal/pool"
	"goforward/pkg/styles"
	"goforward/pkg/types"
	"goforward/pkg/wire"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WorkerIDHeader lleva el id asignado al worker en la respuesta del upgrade.
const WorkerIDHeader = "X-Worker-Id"

// ReplyRouter recibe las respuestas de los workers.
type ReplyRouter interface {
	Route(resp types.ImageResponse) error
	Abandon(id uuid.UUID) bool
}

// Observer recibe los cambios de membresía del pool.
type Observer interface {
	WorkerJoined(info types.WorkerInfo, poolSize int)
	WorkerLeft(info types.WorkerInfo, poolSize int, reason string)
	WorkerAlive(info types.WorkerInfo)
}

// Stats cuenta eventos a nivel de frame.
type Stats interface {
	IncInvalidFrame(kind string)
	IncPingFailure()
}

type Options struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	SendQueueSize     int
	WriteTimeout      time.Duration
	MaxFrameSize      int64
}

func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTimeout:  15 * time.Second,
		SendQueueSize:     16,
		WriteTimeout:      10 * time.Second,
		MaxFrameSize:      64 << 20,
	}
}

// Server acepta conexiones websocket de workers y las mantiene registradas
// en el pool mientras estén vivas.
type Server struct {
	pool      *pool.Registry
	router    ReplyRouter
	opts      Options
	observers []Observer
	stats     Stats
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

type nopStats struct{}

func (nopStats) IncInvalidFrame(string) {}
func (nopStats) IncPingFailure()        {}

func NewServer(p *pool.Registry, router ReplyRouter, opts Options, observers ...Observer) *Server {
	def := DefaultOptions()
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = def.HeartbeatInterval
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = def.SendQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = def.MaxFrameSize
	}

	return &Server{
		pool:      p,
		router:    router,
		opts:      opts,
		observers: observers,
		stats:     nopStats{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			Subprotocols:    []string{wire.MsgpackSubprotocol},
			// los workers no son navegadores
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
}

// WithStats conecta los contadores de frames (métricas).
func (s *Server) WithStats(st Stats) *Server {
	if st != nil {
		s.stats = st
	}
	return s
}

// ServeHTTP hace el upgrade a websocket; el upgrade exitoso es el handshake.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.New().String()
	header := http.Header{}
	header.Set(WorkerIDHeader, id)

	ws, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade ya respondió con el error HTTP
		styles.PrintFS("error", "[WS] Handshake fallido desde %s: %v", r.RemoteAddr, err)
		return
	}
	s.Accept(id, ws)
}

// Accept toma un canal websocket ya establecido, crea la conexión del worker
// y la deja Active (registrada y con heartbeat).
func (s *Server) Accept(id string, ws *websocket.Conn) *Conn {
	c := newConn(s, id, ws)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	c.activate()
	return c
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		s.wg.Done()
	}
	s.mu.Unlock()
}

// Workers lista las conexiones registradas en el pool.
func (s *Server) Workers() []types.WorkerInfo {
	snapshot := s.pool.Snapshot()
	out := make([]types.WorkerInfo, 0, len(snapshot))
	for _, w := range snapshot {
		if c, ok := w.(*Conn); ok {
			out = append(out, c.Info())
		}
	}
	return out
}

// Shutdown cierra todas las conexiones y espera a que se desregistren.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	styles.PrintFS("info", "[WS] Cerrando %d conexiones de workers", len(conns))
	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
