package pending

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrDuplicateID = errors.New("pending: request id already registered")
	ErrNotFound    = errors.New("pending: no pending request for id")
)

// Table relaciona cada request id con el canal donde espera su llamador.
// Cada entrada se consume exactamente una vez: Resolve, Abort o Cancel.
type Table struct {
	mu      sync.Mutex
	entries map[uuid.UUID]chan []byte
}

func NewTable() *Table {
	return &Table{entries: make(map[uuid.UUID]chan []byte)}
}

// Begin crea el canal de respuesta para id.
// El canal recibe a lo sumo un valor; si se cierra sin valor la entrega falló.
func (t *Table) Begin(id uuid.UUID) (<-chan []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; ok {
		return nil, ErrDuplicateID
	}
	ch := make(chan []byte, 1)
	t.entries[id] = ch
	return ch, nil
}

// Resolve entrega payload al llamador y elimina la entrada.
func (t *Table) Resolve(id uuid.UUID, payload []byte) error {
	ch, ok := t.take(id)
	if !ok {
		return ErrNotFound
	}
	// buffer de 1 y único escritor: nunca bloquea
	ch <- payload
	return nil
}

// Abort elimina la entrada y cierra su canal sin valor, para que el llamador
// falle en el momento en vez de esperar el timeout.
func (t *Table) Abort(id uuid.UUID) bool {
	ch, ok := t.take(id)
	if ok {
		close(ch)
	}
	return ok
}

// Cancel elimina la entrada sin cumplirla. No hace nada si ya fue consumida.
func (t *Table) Cancel(id uuid.UUID) {
	t.take(id)
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) Contains(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

func (t *Table) take(id uuid.UUID) (chan []byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return ch, ok
}
