package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goforward/forward-server/internal/pending"
	"goforward/forward-server/internal/pool"
	"goforward/pkg/styles"
	"goforward/pkg/types"

	"github.com/google/uuid"
)

const DefaultReplyTimeout = 60 * time.Second

// Outcome clasifica cómo terminó un Dispatch.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeNoWorkers      Outcome = "no_workers"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeCanceled       Outcome = "canceled"
)

// Result resume un Dispatch terminado, para métricas y auditoría.
type Result struct {
	RequestID   uuid.UUID
	WorkerID    string
	Outcome     Outcome
	StartedAt   time.Time
	Duration    time.Duration
	InputBytes  int
	OutputBytes int
}

// Observer recibe cada Result. Se llama en la goroutine del llamador,
// así que no debe bloquear.
type Observer interface {
	ObserveDispatch(Result)
}

// Dispatcher reparte cada imagen a un worker del pool y espera su respuesta.
type Dispatcher struct {
	pool      *pool.Registry
	pending   *pending.Table
	timeout   time.Duration
	observers []Observer

	newID func() uuid.UUID
	now   func() time.Time
}

func New(p *pool.Registry, t *pending.Table, timeout time.Duration, observers ...Observer) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &Dispatcher{
		pool:      p,
		pending:   t,
		timeout:   timeout,
		observers: observers,
		newID:     uuid.New,
		now:       time.Now,
	}
}

func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

// Dispatch envía payload a un worker y devuelve el payload procesado.
// No reintenta: cualquier fallo vuelve al llamador. La entrada de correlación
// se limpia en todos los caminos de salida.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) ([]byte, error) {
	id := d.newID()
	res := Result{RequestID: id, StartedAt: d.now(), InputBytes: len(payload)}

	reply, err := d.pending.Begin(id)
	if err != nil {
		return nil, fmt.Errorf("dispatch: begin %s: %w", id, err)
	}
	styles.PrintFS("default", "[DISPATCH] Request %s registrado (%d bytes), pendientes: %d", id, len(payload), d.pending.Len())

	w, err := d.pool.SelectNext()
	if err != nil {
		d.pending.Cancel(id)
		styles.PrintFS("error", "[DISPATCH] Request %s sin workers disponibles", id)
		d.finish(res, OutcomeNoWorkers)
		return nil, ErrNoAvailableWorkers
	}
	res.WorkerID = w.ID()

	waitCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := w.Send(waitCtx, types.ImageRequest{RequestID: id, ImageData: payload}); err != nil {
		d.pending.Cancel(id)
		return nil, d.fail(ctx, res, err)
	}
	styles.PrintFS("default", "[DISPATCH] Request %s enviado al worker %s", id, w.ID())

	select {
	case out, ok := <-reply:
		return d.deliver(res, out, ok)

	case <-waitCtx.Done():
		d.pending.Cancel(id)
		// la respuesta o el abort pudieron ganar la carrera justo antes del Cancel
		select {
		case out, ok := <-reply:
			return d.deliver(res, out, ok)
		default:
		}
		return nil, d.fail(ctx, res, waitCtx.Err())
	}
}

// deliver resuelve lo recibido por el canal de respuesta: un canal cerrado sin
// valor significa que la conexión del worker murió con el request en vuelo.
func (d *Dispatcher) deliver(res Result, out []byte, ok bool) ([]byte, error) {
	if !ok {
		d.pending.Cancel(res.RequestID)
		styles.PrintFS("warn", "[DISPATCH] Request %s: el worker %s se desconectó antes de responder", res.RequestID, res.WorkerID)
		d.finish(res, OutcomeDeliveryFailed)
		return nil, fmt.Errorf("%w: worker %s disconnected", ErrDeliveryFailed, res.WorkerID)
	}
	res.OutputBytes = len(out)
	styles.PrintFS("info", "[DISPATCH] Request %s respondido por %s (%d bytes)", res.RequestID, res.WorkerID, len(out))
	d.finish(res, OutcomeOK)
	return out, nil
}

// fail clasifica el error de envío o espera según quién canceló el contexto.
func (d *Dispatcher) fail(parent context.Context, res Result, cause error) error {
	switch {
	case parent.Err() != nil:
		styles.PrintFS("warn", "[DISPATCH] Request %s cancelado por el llamador: %v", res.RequestID, parent.Err())
		d.finish(res, OutcomeCanceled)
		return parent.Err()
	case errors.Is(cause, context.DeadlineExceeded):
		styles.PrintFS("error", "[DISPATCH] Request %s expiró tras %s", res.RequestID, d.timeout)
		d.finish(res, OutcomeTimeout)
		return ErrTimeout
	default:
		styles.PrintFS("error", "[DISPATCH] Error enviando request %s al worker %s: %v", res.RequestID, res.WorkerID, cause)
		d.finish(res, OutcomeDeliveryFailed)
		return fmt.Errorf("%w: worker %s: %v", ErrDeliveryFailed, res.WorkerID, cause)
	}
}

func (d *Dispatcher) finish(res Result, outcome Outcome) {
	res.Outcome = outcome
	res.Duration = d.now().Sub(res.StartedAt)
	for _, o := range d.observers {
		o.ObserveDispatch(res)
	}
}
