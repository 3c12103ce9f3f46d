package dispatcher

import "errors"

var (
	// ErrNoAvailableWorkers indica que el pool estaba vacío al momento de elegir worker.
	ErrNoAvailableWorkers = errors.New("dispatch: no available workers")

	// ErrDeliveryFailed indica que el envío al worker falló o que su conexión
	// murió antes de que llegara la respuesta.
	ErrDeliveryFailed = errors.New("dispatch: delivery to worker failed")

	// ErrTimeout indica que no llegó respuesta dentro del plazo configurado.
	ErrTimeout = errors.New("dispatch: timed out waiting for worker reply")
)
