package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"goforward/pkg/styles"
	"goforward/pkg/types"
	"goforward/pkg/wire"

	"github.com/gorilla/websocket"
)

// WorkerIDHeader es donde el gateway devuelve el id asignado en el upgrade.
const WorkerIDHeader = "X-Worker-Id"

var ErrNoWorkerID = errors.New("handshake: upgrade sin " + WorkerIDHeader)

type ClientState int32

const (
	StDisconnected ClientState = iota
	StConnecting
	StHandshaking
	StReady
	StWorking
	StShuttingDown
)

func (s ClientState) String() string {
	switch s {
	case StDisconnected:
		return "disconnected"
	case StConnecting:
		return "connecting"
	case StHandshaking:
		return "handshaking"
	case StReady:
		return "ready"
	case StWorking:
		return "working"
	case StShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Processor transforma el payload de un Request en el de su Response.
type Processor interface {
	Process(ctx context.Context, payload []byte) ([]byte, error)
}

type ProcessorFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f ProcessorFunc) Process(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// Echo devuelve el payload sin cambios.
var Echo = ProcessorFunc(func(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
})

type Options struct {
	URL          string
	Msgpack      bool // ofrece el subprotocolo msgpack al gateway
	Concurrency  int
	WriteTimeout time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// MaxAttempts corta Run tras N conexiones fallidas seguidas (0 = nunca).
	MaxAttempts int
}

type WorkerClient struct {
	opts      Options
	processor Processor
	dialer    websocket.Dialer

	state    atomic.Int32
	inflight atomic.Int32
	handled  atomic.Uint64

	mu       sync.Mutex
	id       string
	lastSeen time.Time
}

func NewClient(opts Options, p Processor) *WorkerClient {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = 30 * time.Second
	}
	if p == nil {
		p = Echo
	}

	wc := &WorkerClient{
		opts:      opts,
		processor: p,
		dialer: websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
			ReadBufferSize:   64 << 10,
			WriteBufferSize:  64 << 10,
		},
	}
	if opts.Msgpack {
		wc.dialer.Subprotocols = []string{wire.MsgpackSubprotocol}
	}
	return wc
}

func (wc *WorkerClient) State() ClientState { return ClientState(wc.state.Load()) }

func (wc *WorkerClient) setState(s ClientState) { wc.state.Store(int32(s)) }

// ID es el id asignado en la última conexión.
func (wc *WorkerClient) ID() string {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.id
}

// Handled cuenta los Requests respondidos desde el arranque.
func (wc *WorkerClient) Handled() uint64 { return wc.handled.Load() }

func (wc *WorkerClient) LastSeen() time.Time {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.lastSeen
}

func (wc *WorkerClient) touch() {
	wc.mu.Lock()
	wc.lastSeen = time.Now()
	wc.mu.Unlock()
}

// Connect hace el upgrade; el gateway asigna el id en la respuesta.
func (wc *WorkerClient) Connect(ctx context.Context) (*websocket.Conn, error) {
	wc.setState(StConnecting)
	ws, resp, err := wc.dialer.DialContext(ctx, wc.opts.URL, http.Header{})
	if err != nil {
		wc.setState(StDisconnected)
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", wc.opts.URL, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", wc.opts.URL, err)
	}

	wc.setState(StHandshaking)
	id := resp.Header.Get(WorkerIDHeader)
	if id == "" {
		_ = ws.Close()
		wc.setState(StDisconnected)
		return nil, ErrNoWorkerID
	}

	wc.mu.Lock()
	wc.id = id
	wc.lastSeen = time.Now()
	wc.mu.Unlock()
	wc.setState(StReady)
	return ws, nil
}

// Serve atiende Requests en ws hasta que la conexión cae o ctx termina.
// Con ctx cancelado manda un close frame y devuelve ctx.Err().
func (wc *WorkerClient) Serve(ctx context.Context, ws *websocket.Conn) error {
	codec := wire.ForSubprotocol(ws.Subprotocol())
	var writeMu sync.Mutex
	write := func(ft int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = ws.SetWriteDeadline(time.Now().Add(wc.opts.WriteTimeout))
		return ws.WriteMessage(ft, data)
	}

	ws.SetPingHandler(func(appData string) error {
		wc.touch()
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wc.opts.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			wc.setState(StShuttingDown)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "worker shutting down"),
				time.Now().Add(time.Second))
			_ = ws.Close()
		case <-stop:
		}
	}()

	sem := make(chan struct{}, wc.opts.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			wc.setState(StDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		wc.touch()

		msg, err := codec.Decode(mt, data)
		if err != nil {
			styles.PrintFS("error", "[WORKER] Frame inválido del gateway: %v", err)
			continue
		}
		if msg.Request == nil {
			styles.PrintFS("warn", "[WORKER] Se ignoró un Response enviado por el gateway")
			continue
		}

		// la lectura no espera al procesamiento: los pings se siguen
		// contestando aunque todos los slots estén ocupados
		req := *msg.Request
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			wc.handle(ctx, req, codec, write)
		}()
	}
}

func (wc *WorkerClient) handle(ctx context.Context, req types.ImageRequest, codec wire.Codec, write func(int, []byte) error) {
	if wc.inflight.Add(1) == 1 {
		wc.state.CompareAndSwap(int32(StReady), int32(StWorking))
	}
	defer func() {
		if wc.inflight.Add(-1) == 0 {
			wc.state.CompareAndSwap(int32(StWorking), int32(StReady))
		}
	}()

	out, err := wc.processor.Process(ctx, req.ImageData)
	if err != nil {
		// sin respuesta: el gateway lo resuelve por timeout
		styles.PrintFS("error", "[WORKER] Error procesando request %s: %v", req.RequestID, err)
		return
	}

	ft, frame, err := codec.Encode(types.NewResponseMessage(req.RequestID, out))
	if err != nil {
		styles.PrintFS("error", "[WORKER] Error codificando respuesta %s: %v", req.RequestID, err)
		return
	}
	if err := write(ft, frame); err != nil {
		styles.PrintFS("error", "[WORKER] Error enviando respuesta %s: %v", req.RequestID, err)
		return
	}
	wc.handled.Add(1)
}

// Run conecta y atiende en bucle, reintentando con backoff exponencial
// cuando la conexión falla o se cae. Termina con ctx o al agotar MaxAttempts.
func (wc *WorkerClient) Run(ctx context.Context) error {
	delay := wc.opts.ReconnectMin
	failures := 0

	for {
		ws, err := wc.Connect(ctx)
		if err == nil {
			failures = 0
			delay = wc.opts.ReconnectMin
			styles.PrintFS("success", "[WORKER] Conectado al gateway. Worker ID asignado: %s (codec %s)", wc.ID(), wire.ForSubprotocol(ws.Subprotocol()).Name())

			err = wc.Serve(ctx, ws)
			_ = ws.Close()
			if ctx.Err() != nil {
				wc.setState(StDisconnected)
				styles.PrintFS("info", "[WORKER] Detenido tras %d requests", wc.Handled())
				return nil
			}
			styles.PrintFS("warn", "[WORKER] Conexión perdida: %v", err)
		} else {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			styles.PrintFS("error", "[WORKER] Error de conexión (intento %d): %v", failures, err)
			if wc.opts.MaxAttempts > 0 && failures >= wc.opts.MaxAttempts {
				return fmt.Errorf("worker: %d intentos de conexión fallidos: %w", failures, err)
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		delay *= 2
		if delay > wc.opts.ReconnectMax {
			delay = wc.opts.ReconnectMax
		}
	}
}
