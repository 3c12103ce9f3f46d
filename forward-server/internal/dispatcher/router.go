package dispatcher

import (
	"errors"

	"goforward/forward-server/internal/pending"
	"goforward/pkg/styles"
	"goforward/pkg/types"

	"github.com/google/uuid"
)

// Router entrega las respuestas que llegan por cualquier conexión de worker
// al llamador que las espera.
type Router struct {
	pending *pending.Table

	// OnLateReply se invoca cuando la respuesta no tiene llamador (timeout o id desconocido).
	OnLateReply func(id uuid.UUID)
}

func NewRouter(t *pending.Table) *Router {
	return &Router{pending: t}
}

// Route devuelve pending.ErrNotFound si nadie espera ese id. El error solo se
// registra: el llamador original ya no existe.
func (r *Router) Route(resp types.ImageResponse) error {
	err := r.pending.Resolve(resp.RequestID, resp.ProcessedImageData)
	if errors.Is(err, pending.ErrNotFound) {
		styles.PrintFS("warn", "[ROUTER] No hay request pendiente para %s, respuesta descartada", resp.RequestID)
		if r.OnLateReply != nil {
			r.OnLateReply(resp.RequestID)
		}
		return err
	}
	return err
}

// Abandon falla en el acto la espera de id; lo usa una conexión que se cierra
// con requests en vuelo.
func (r *Router) Abandon(id uuid.UUID) bool {
	return r.pending.Abort(id)
}
