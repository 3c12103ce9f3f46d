package wsserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"goforward/pkg/styles"
	"goforward/pkg/types"
	"goforward/pkg/wire"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrConnClosed = errors.New("wsserver: worker connection closed")

// Motivos de cierre, también usados como label de métricas.
const (
	ReasonPeerClosed       = "peer_closed"
	ReasonReadError        = "read_error"
	ReasonWriteError       = "write_error"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonShutdown         = "shutdown"
)

type frame struct {
	typ  int
	data []byte
}

// Conn es una conexión persistente con un worker. Implementa pool.Worker.
//
// Tres goroutines por conexión: lectura, escritura (cola de envío) y heartbeat.
// closeOnce garantiza que el Deregister corra exactamente una vez.
type Conn struct {
	id          string
	ws          *websocket.Conn
	codec       wire.Codec
	remote      string
	connectedAt time.Time
	srv         *Server

	state        atomic.Int32
	lastActivity atomic.Int64

	send chan frame
	done chan struct{}

	closeOnce sync.Once
	reason    string

	inflightMu sync.Mutex
	inflight   map[uuid.UUID]struct{}
	closed     bool
}

func newConn(srv *Server, id string, ws *websocket.Conn) *Conn {
	c := &Conn{
		id:          id,
		ws:          ws,
		codec:       wire.ForSubprotocol(ws.Subprotocol()),
		remote:      ws.RemoteAddr().String(),
		connectedAt: time.Now(),
		srv:         srv,
		send:        make(chan frame, srv.opts.SendQueueSize),
		done:        make(chan struct{}),
		inflight:    make(map[uuid.UUID]struct{}),
	}
	c.state.Store(int32(types.WorkerConnecting))
	c.touch()
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) State() types.WorkerState {
	return types.WorkerState(c.state.Load())
}

func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Done se cierra cuando la conexión deja de estar activa.
func (c *Conn) Done() <-chan struct{} { return c.done }

// CloseReason es válido una vez cerrado Done.
func (c *Conn) CloseReason() string {
	select {
	case <-c.done:
		return c.reason
	default:
		return ""
	}
}

func (c *Conn) Info() types.WorkerInfo {
	c.inflightMu.Lock()
	n := len(c.inflight)
	c.inflightMu.Unlock()

	return types.WorkerInfo{
		ID:           c.id,
		RemoteAddr:   c.remote,
		Codec:        c.codec.Name(),
		State:        c.State(),
		ConnectedAt:  c.connectedAt,
		LastActivity: c.LastActivity(),
		InFlight:     n,
	}
}

// Send encola un Request para el worker. Falla con ErrConnClosed si la
// conexión ya está cerrando. No espera a que el frame salga por el socket.
func (c *Conn) Send(ctx context.Context, req types.ImageRequest) error {
	ft, data, err := c.codec.Encode(types.ImageMessage{Request: &req})
	if err != nil {
		return err
	}

	c.inflightMu.Lock()
	if c.closed {
		c.inflightMu.Unlock()
		return ErrConnClosed
	}
	c.inflight[req.RequestID] = struct{}{}
	c.inflightMu.Unlock()

	select {
	case c.send <- frame{typ: ft, data: data}:
		return nil
	case <-c.done:
		c.forget(req.RequestID)
		return ErrConnClosed
	case <-ctx.Done():
		c.forget(req.RequestID)
		return ctx.Err()
	}
}

// Close cierra la conexión por decisión local.
func (c *Conn) Close() {
	c.close(ReasonShutdown)
}

func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Conn) forget(id uuid.UUID) {
	c.inflightMu.Lock()
	delete(c.inflight, id)
	c.inflightMu.Unlock()
}

// activate registra la conexión en el pool y arranca sus goroutines.
func (c *Conn) activate() {
	c.ws.SetReadLimit(c.srv.opts.MaxFrameSize)
	c.ws.SetPingHandler(func(appData string) error {
		c.touch()
		err := c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.srv.opts.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			styles.PrintFS("warn", "[WS] Error respondiendo ping de %s: %v", c.id, err)
		}
		return nil
	})
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	c.state.Store(int32(types.WorkerActive))
	size := c.srv.pool.Register(c)
	styles.PrintFS("success", "[WS] Worker %s conectado desde %s (codec %s). Workers activos: %d", c.id, c.remote, c.codec.Name(), size)
	for _, o := range c.srv.observers {
		o.WorkerJoined(c.Info(), size)
	}

	go c.writeLoop()
	go c.heartbeatLoop()
	go c.readLoop()
}

func (c *Conn) readLoop() {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				styles.PrintFS("warn", "[WS] Worker %s cerró la conexión: %v", c.id, err)
				c.close(ReasonPeerClosed)
			} else {
				if c.State() == types.WorkerActive {
					styles.PrintFS("error", "[WS] Error leyendo de worker %s: %v", c.id, err)
				}
				c.close(ReasonReadError)
			}
			return
		}
		c.touch()
		c.handleFrame(mt, data)
	}
}

func (c *Conn) handleFrame(mt int, data []byte) {
	msg, err := c.codec.Decode(mt, data)
	if err != nil {
		styles.PrintFS("error", "[WS] Frame inválido de worker %s (%d bytes): %v", c.id, len(data), err)
		c.srv.stats.IncInvalidFrame("malformed")
		return
	}

	if msg.Request != nil {
		styles.PrintFS("warn", "[WS] Worker %s envió un Request (%s); los workers no originan requests", c.id, msg.Request.RequestID)
		c.srv.stats.IncInvalidFrame("unexpected_request")
		return
	}

	c.forget(msg.Response.RequestID)
	styles.PrintFS("default", "[WS] Response %s recibido de worker %s", msg.Response.RequestID, c.id)
	_ = c.srv.router.Route(*msg.Response)
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteTimeout))
			if err := c.ws.WriteMessage(f.typ, f.data); err != nil {
				styles.PrintFS("error", "[WS] Error escribiendo a worker %s: %v", c.id, err)
				c.close(ReasonWriteError)
				return
			}
		}
	}
}

// heartbeatLoop cierra la conexión si no hubo actividad en HeartbeatTimeout;
// si no, manda un ping. Un ping fallido solo se registra.
func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.srv.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			idle := now.Sub(c.LastActivity())
			if idle > c.srv.opts.HeartbeatTimeout {
				styles.PrintFS("warn", "[WS] Worker %s sin actividad hace %s, cerrando", c.id, idle.Truncate(time.Millisecond))
				c.close(ReasonHeartbeatTimeout)
				return
			}

			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.srv.opts.WriteTimeout))
			if err != nil {
				styles.PrintFS("warn", "[WS] Error enviando ping a worker %s: %v", c.id, err)
				c.srv.stats.IncPingFailure()
				continue
			}
			info := c.Info()
			for _, o := range c.srv.observers {
				o.WorkerAlive(info)
			}
		}
	}
}

// close lleva la conexión a Closing y luego a Closed. Solo la primera llamada
// tiene efecto: las demás razones se descartan.
func (c *Conn) close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		c.state.Store(int32(types.WorkerClosing))
		close(c.done)

		code := websocket.CloseGoingAway
		if reason == ReasonHeartbeatTimeout {
			code = websocket.ClosePolicyViolation
		}
		if reason != ReasonReadError && reason != ReasonWriteError {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason),
				time.Now().Add(c.srv.opts.WriteTimeout))
		}
		_ = c.ws.Close()

		size, _ := c.srv.pool.Deregister(c)

		c.inflightMu.Lock()
		c.closed = true
		ids := make([]uuid.UUID, 0, len(c.inflight))
		for id := range c.inflight {
			ids = append(ids, id)
		}
		c.inflight = make(map[uuid.UUID]struct{})
		c.inflightMu.Unlock()

		for _, id := range ids {
			if c.srv.router.Abandon(id) {
				styles.PrintFS("warn", "[WS] Request %s abandonado: worker %s desconectado", id, c.id)
			}
		}

		c.state.Store(int32(types.WorkerClosed))
		styles.PrintFS("warn", "[WS] Worker %s desconectado (%s). Workers activos: %d", c.id, reason, size)

		info := c.Info()
		for _, o := range c.srv.observers {
			o.WorkerLeft(info, size, reason)
		}
		c.srv.untrack(c)
	})
}
