package pool

import (
	"context"
	"errors"
	"sync"

	"goforward/pkg/types"
)

var ErrEmptyPool = errors.New("pool: no workers registered")

// Worker es el handle opaco de un worker conectado.
// Se compara por identidad: cada conexión nueva produce un handle nuevo.
type Worker interface {
	ID() string
	Send(ctx context.Context, req types.ImageRequest) error
}

// Registry mantiene los workers conectados en orden de llegada y el cursor
// del round robin. Todas las operaciones toman el mismo mutex.
type Registry struct {
	mu      sync.Mutex
	workers []Worker
	cursor  int
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register agrega el worker al final y devuelve el nuevo tamaño.
func (r *Registry) Register(w Worker) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workers = append(r.workers, w)
	return len(r.workers)
}

// Deregister quita la primera aparición de w. Si no estaba no hace nada,
// así un doble deregister por carreras es inofensivo.
func (r *Registry) Deregister(w Worker) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, cur := range r.workers {
		if cur == w {
			copy(r.workers[i:], r.workers[i+1:])
			r.workers[len(r.workers)-1] = nil
			r.workers = r.workers[:len(r.workers)-1]
			return len(r.workers), true
		}
	}
	return len(r.workers), false
}

// SelectNext devuelve el siguiente worker en rotación.
// El índice se recalcula con el largo actual porque el pool pudo achicarse
// desde la última selección.
func (r *Registry) SelectNext() (Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.workers)
	if n == 0 {
		return nil, ErrEmptyPool
	}

	idx := r.cursor % n
	w := r.workers[idx]
	r.cursor = (idx + 1) % n
	return w, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Snapshot copia la lista actual; útil para monitoreo sin retener el lock.
func (r *Registry) Snapshot() []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Worker, len(r.workers))
	copy(out, r.workers)
	return out
}
