package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"goforward/forward-server/internal/dispatcher"
	"goforward/forward-server/internal/pending"
	"goforward/forward-server/internal/pool"
	"goforward/forward-server/internal/wsserver"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	entries []Entry
	block   chan struct{}
	err     error
}

func (m *memStore) Insert(_ context.Context, e Entry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *memStore) all() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func TestEntryFromResult(t *testing.T) {
	id := uuid.New()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	e := EntryFromResult(dispatcher.Result{
		RequestID:   id,
		WorkerID:    "w1",
		Outcome:     dispatcher.OutcomeOK,
		StartedAt:   start,
		Duration:    1500 * time.Millisecond,
		InputBytes:  10,
		OutputBytes: 20,
	})

	assert.Equal(t, id.String(), e.RequestID)
	assert.Equal(t, "ok", e.Outcome)
	assert.Equal(t, int64(1500), e.DurationMS)
	assert.Equal(t, time.UTC, e.StartedAt.Location())
}

func TestRecorder_WritesAndFlushesOnClose(t *testing.T) {
	store := &memStore{err: errors.New("ignored")}
	r := NewRecorder(store, 8)

	for i := 0; i < 5; i++ {
		r.ObserveDispatch(dispatcher.Result{RequestID: uuid.New(), Outcome: dispatcher.OutcomeTimeout})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
	assert.Len(t, store.all(), 5)
	assert.Zero(t, r.Dropped())
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	store := &memStore{block: make(chan struct{})}
	r := NewRecorder(store, 1)

	// una entrada queda bloqueada en Insert, otra en el buffer, el resto se descarta
	r.ObserveDispatch(dispatcher.Result{RequestID: uuid.New()})
	require.Eventually(t, func() bool { return len(r.entries) == 0 }, time.Second, time.Millisecond)
	for i := 0; i < 4; i++ {
		r.ObserveDispatch(dispatcher.Result{RequestID: uuid.New()})
	}
	assert.Equal(t, uint64(3), r.Dropped())

	close(store.block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
	assert.Len(t, store.all(), 2)
}

func TestRecorder_ObserveAfterCloseCountsAsDropped(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))

	assert.NotPanics(t, func() {
		r.ObserveDispatch(dispatcher.Result{RequestID: uuid.New(), Outcome: dispatcher.OutcomeDeliveryFailed})
	})
	assert.Equal(t, uint64(1), r.Dropped())
	assert.Empty(t, store.all())
}

// Dispatch que terminan mientras el proceso se apaga no deben tumbar al llamador.
func TestRecorder_ConcurrentObserveAndClose(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 8)

	const n = 200
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			r.ObserveDispatch(dispatcher.Result{RequestID: uuid.New(), Outcome: dispatcher.OutcomeDeliveryFailed})
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	close(start)
	require.NoError(t, r.Close(ctx))
	wg.Wait()

	assert.Equal(t, uint64(n), uint64(len(store.all()))+r.Dropped())
}

// Mismo orden de apagado que el binario: workers primero, auditoría después,
// con un Dispatch todavía esperando respuesta.
func TestRecorder_ShutdownWithDispatchInFlight(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store, 8)

	p := pool.NewRegistry()
	table := pending.NewTable()
	disp := dispatcher.New(p, table, 30*time.Second, rec)
	ws := wsserver.NewServer(p, dispatcher.NewRouter(table), wsserver.DefaultOptions())
	srv := httptest.NewServer(ws)
	defer srv.Close()

	// el worker nunca responde
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return p.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		_, err := disp.Dispatch(context.Background(), []byte("frame"))
		errCh <- err
	}()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ws.Shutdown(ctx))
	require.NoError(t, rec.Close(ctx))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, dispatcher.ErrDeliveryFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after shutdown")
	}
	assert.Equal(t, uint64(1), uint64(len(store.all()))+rec.Dropped())
}
