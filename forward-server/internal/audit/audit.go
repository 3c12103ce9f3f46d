package audit

import (
	"context"
	"sync"
	"time"

	"goforward/forward-server/internal/dispatcher"
	"goforward/pkg/styles"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

const (
	CollectionName = "dispatches"
	defaultBuffer  = 256
	writeTimeout   = 3 * time.Second
)

// Entry es el documento que se guarda por cada Dispatch terminado.
type Entry struct {
	RequestID   string    `bson:"requestId" json:"request_id"`
	WorkerID    string    `bson:"workerId,omitempty" json:"worker_id,omitempty"`
	Outcome     string    `bson:"outcome" json:"outcome"`
	StartedAt   time.Time `bson:"startedAt" json:"started_at"`
	DurationMS  int64     `bson:"durationMs" json:"duration_ms"`
	InputBytes  int       `bson:"inputBytes" json:"input_bytes"`
	OutputBytes int       `bson:"outputBytes" json:"output_bytes"`
}

func EntryFromResult(res dispatcher.Result) Entry {
	return Entry{
		RequestID:   res.RequestID.String(),
		WorkerID:    res.WorkerID,
		Outcome:     string(res.Outcome),
		StartedAt:   res.StartedAt.UTC(),
		DurationMS:  res.Duration.Milliseconds(),
		InputBytes:  res.InputBytes,
		OutputBytes: res.OutputBytes,
	}
}

// Store persiste entradas; MongoStore en producción, fakes en tests.
type Store interface {
	Insert(ctx context.Context, e Entry) error
}

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

func (s *MongoStore) Insert(ctx context.Context, e Entry) error {
	_, err := s.coll.InsertOne(ctx, e)
	return err
}

// Recorder implementa dispatcher.Observer sin bloquear al llamador: las
// entradas van a un buffer y una goroutine las escribe. Si el buffer está
// lleno la entrada se descarta.
type Recorder struct {
	store   Store
	entries chan Entry

	// mu protege closed: ningún envío a entries ocurre después del close.
	mu      sync.Mutex
	closed  bool
	dropped uint64

	done chan struct{}
}

func NewRecorder(store Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		store:   store,
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// ObserveDispatch nunca bloquea. Tras Close la entrada cuenta como descartada.
func (r *Recorder) ObserveDispatch(res dispatcher.Result) {
	e := EntryFromResult(res)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.dropped++
		return
	}
	select {
	case r.entries <- e:
	default:
		r.dropped++
	}
}

func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close deja de aceptar entradas y espera a que se escriban las pendientes.
// Es seguro llamarlo con Dispatch todavía en curso y más de una vez.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.store.Insert(ctx, e); err != nil {
			styles.PrintFS("error", "[AUDIT] Error guardando dispatch %s: %v", e.RequestID, err)
		}
		cancel()
	}
}
