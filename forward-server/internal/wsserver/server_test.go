package wsserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"goforward/forward-server/internal/dispatcher"
	"goforward/forward-server/internal/pending"
	"goforward/forward-server/internal/pool"
	"goforward/pkg/types"
	"goforward/pkg/wire"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind   string
	id     string
	size   int
	reason string
}

type recordingObserver struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingObserver) WorkerJoined(info types.WorkerInfo, size int) {
	r.add(event{kind: "join", id: info.ID, size: size})
}

func (r *recordingObserver) WorkerLeft(info types.WorkerInfo, size int, reason string) {
	r.add(event{kind: "leave", id: info.ID, size: size, reason: reason})
}

func (r *recordingObserver) WorkerAlive(types.WorkerInfo) {}

func (r *recordingObserver) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) leaves() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.kind == "leave" {
			out = append(out, e)
		}
	}
	return out
}

type countingStats struct {
	mu      sync.Mutex
	invalid map[string]int
}

func (c *countingStats) IncInvalidFrame(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalid[kind]++
}

func (c *countingStats) IncPingFailure() {}

func (c *countingStats) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalid[kind]
}

type harness struct {
	pool  *pool.Registry
	table *pending.Table
	disp  *dispatcher.Dispatcher
	srv   *Server
	obs   *recordingObserver
	stats *countingStats
	http  *httptest.Server
}

func newHarness(t *testing.T, opts Options, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		pool:  pool.NewRegistry(),
		table: pending.NewTable(),
		obs:   &recordingObserver{},
		stats: &countingStats{invalid: make(map[string]int)},
	}
	h.disp = dispatcher.New(h.pool, h.table, timeout)
	h.srv = NewServer(h.pool, dispatcher.NewRouter(h.table), opts, h.obs).WithStats(h.stats)
	h.http = httptest.NewServer(h.srv)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.srv.Shutdown(ctx)
		h.http.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T, subprotocols ...string) (*websocket.Conn, *http.Response) {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: subprotocols}
	url := "ws" + strings.TrimPrefix(h.http.URL, "http")
	ws, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws, resp
}

func (h *harness) waitPool(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.pool.Len() == n }, 2*time.Second, 5*time.Millisecond)
}

// echo responde cada Request con su mismo payload hasta que la conexión muera.
func echo(ws *websocket.Conn, codec wire.Codec) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := codec.Decode(mt, data)
		if err != nil || msg.Request == nil {
			continue
		}
		ft, out, err := codec.Encode(types.NewResponseMessage(msg.Request.RequestID, msg.Request.ImageData))
		if err != nil {
			return
		}
		if err := ws.WriteMessage(ft, out); err != nil {
			return
		}
	}
}

func fastOptions() Options {
	return Options{
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatTimeout:  80 * time.Millisecond,
		WriteTimeout:      time.Second,
	}
}

func TestServer_HandshakeAssignsWorkerID(t *testing.T) {
	h := newHarness(t, DefaultOptions(), time.Second)
	_, resp := h.dial(t)
	h.waitPool(t, 1)

	id := resp.Header.Get(WorkerIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	workers := h.srv.Workers()
	require.Len(t, workers, 1)
	assert.Equal(t, id, workers[0].ID)
	assert.Equal(t, types.WorkerActive, workers[0].State)
	assert.Equal(t, "frame", workers[0].Codec)
}

func TestServer_DispatchRoundTripOverWebsocket(t *testing.T) {
	h := newHarness(t, DefaultOptions(), 2*time.Second)
	ws, _ := h.dial(t)
	go echo(ws, wire.FrameCodec{})
	h.waitPool(t, 1)

	out, err := h.disp.Dispatch(context.Background(), []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, out)
	assert.Equal(t, 0, h.table.Len())
}

func TestServer_MsgpackSubprotocol(t *testing.T) {
	h := newHarness(t, DefaultOptions(), 2*time.Second)
	ws, _ := h.dial(t, wire.MsgpackSubprotocol)
	require.Equal(t, wire.MsgpackSubprotocol, ws.Subprotocol())
	go echo(ws, wire.MsgpackCodec{})
	h.waitPool(t, 1)

	out, err := h.disp.Dispatch(context.Background(), []byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, []byte("frame"), out)
	assert.Equal(t, "msgpack", h.srv.Workers()[0].Codec)
}

func TestServer_RoundRobinAcrossConnections(t *testing.T) {
	h := newHarness(t, DefaultOptions(), 2*time.Second)

	var mu sync.Mutex
	hits := map[string]int{}
	for _, name := range []string{"a", "b"} {
		ws, _ := h.dial(t)
		h.waitPool(t, map[string]int{"a": 1, "b": 2}[name])
		go func(name string, ws *websocket.Conn) {
			codec := wire.FrameCodec{}
			for {
				mt, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				msg, err := codec.Decode(mt, data)
				if err != nil || msg.Request == nil {
					continue
				}
				mu.Lock()
				hits[name]++
				mu.Unlock()
				ft, out, _ := codec.Encode(types.NewResponseMessage(msg.Request.RequestID, []byte(name)))
				_ = ws.WriteMessage(ft, out)
			}
		}(name, ws)
	}

	var got []string
	for i := 0; i < 3; i++ {
		out, err := h.disp.Dispatch(context.Background(), []byte("x"))
		require.NoError(t, err)
		got = append(got, string(out))
	}
	assert.Equal(t, []string{"a", "b", "a"}, got)
}

func TestServer_HeartbeatEvictsSilentWorker(t *testing.T) {
	h := newHarness(t, fastOptions(), time.Second)
	// el cliente nunca lee, así que nunca contesta los pings
	h.dial(t)
	h.waitPool(t, 1)

	h.waitPool(t, 0)
	require.Eventually(t, func() bool { return len(h.obs.leaves()) == 1 }, time.Second, 5*time.Millisecond)
	leave := h.obs.leaves()[0]
	assert.Equal(t, ReasonHeartbeatTimeout, leave.reason)
	assert.Equal(t, 0, leave.size)
}

func TestServer_HeartbeatKeepsResponsiveWorker(t *testing.T) {
	h := newHarness(t, fastOptions(), time.Second)
	ws, _ := h.dial(t)
	// leer procesa los pings y el handler por defecto responde pong
	go echo(ws, wire.FrameCodec{})
	h.waitPool(t, 1)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, h.pool.Len())
	assert.Empty(t, h.obs.leaves())
}

func TestServer_DisconnectFailsInFlightRequest(t *testing.T) {
	h := newHarness(t, DefaultOptions(), 10*time.Second)
	ws, _ := h.dial(t)
	h.waitPool(t, 1)

	var reqID uuid.UUID
	got := make(chan struct{})
	go func() {
		mt, data, err := ws.ReadMessage()
		if err == nil {
			if msg, err := (wire.FrameCodec{}).Decode(mt, data); err == nil && msg.Request != nil {
				reqID = msg.Request.RequestID
			}
		}
		close(got)
		// corte de transporte sin frame de cierre
		_ = ws.UnderlyingConn().Close()
	}()

	start := time.Now()
	_, err := h.disp.Dispatch(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, dispatcher.ErrDeliveryFailed)
	assert.Less(t, time.Since(start), 5*time.Second)

	<-got
	h.waitPool(t, 0)
	assert.Equal(t, 0, h.table.Len())
	assert.False(t, h.table.Contains(reqID))
}

func TestServer_IgnoresInvalidFramesAndRequests(t *testing.T) {
	h := newHarness(t, DefaultOptions(), 2*time.Second)
	ws, _ := h.dial(t)
	h.waitPool(t, 1)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("garbage")))
	ft, data, err := wire.FrameCodec{}.Encode(types.NewRequestMessage(uuid.New(), []byte("nope")))
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(ft, data))

	require.Eventually(t, func() bool {
		return h.stats.count("malformed") == 1 && h.stats.count("unexpected_request") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.pool.Len())

	// la conexión sigue sirviendo
	go echo(ws, wire.FrameCodec{})
	out, err := h.disp.Dispatch(context.Background(), []byte("still alive"))
	require.NoError(t, err)
	assert.Equal(t, []byte("still alive"), out)
}

func TestServer_PeerCloseDeregisters(t *testing.T) {
	h := newHarness(t, DefaultOptions(), time.Second)
	ws, _ := h.dial(t)
	h.waitPool(t, 1)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	h.waitPool(t, 0)
	require.Eventually(t, func() bool { return len(h.obs.leaves()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonPeerClosed, h.obs.leaves()[0].reason)
}

func TestServer_ShutdownClosesAll(t *testing.T) {
	h := newHarness(t, DefaultOptions(), time.Second)
	h.dial(t)
	h.dial(t)
	h.waitPool(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))

	assert.Equal(t, 0, h.pool.Len())
	for _, e := range h.obs.leaves() {
		assert.Equal(t, ReasonShutdown, e.reason)
	}
	assert.Len(t, h.obs.leaves(), 2)
}

func TestConn_SendAfterCloseFails(t *testing.T) {
	h := newHarness(t, DefaultOptions(), time.Second)
	h.dial(t)
	h.waitPool(t, 1)

	w, err := h.pool.SelectNext()
	require.NoError(t, err)
	c := w.(*Conn)
	c.Close()
	<-c.Done()

	assert.Equal(t, types.WorkerClosed, c.State())
	assert.Equal(t, ReasonShutdown, c.CloseReason())
	err = c.Send(context.Background(), types.ImageRequest{RequestID: uuid.New()})
	assert.ErrorIs(t, err, ErrConnClosed)
}
