package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkerState representa la fase del ciclo de vida de una conexión de worker.
type WorkerState int32

const (
	WorkerConnecting WorkerState = iota
	WorkerActive
	WorkerClosing
	WorkerClosed
)

func (s WorkerState) String() string {
	switch s {
	case WorkerConnecting:
		return "connecting"
	case WorkerActive:
		return "active"
	case WorkerClosing:
		return "closing"
	case WorkerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s WorkerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *WorkerState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "connecting":
		*s = WorkerConnecting
	case "active":
		*s = WorkerActive
	case "closing":
		*s = WorkerClosing
	case "closed":
		*s = WorkerClosed
	default:
		return fmt.Errorf("types: unknown worker state %q", text)
	}
	return nil
}

// WorkerInfo es la vista de solo lectura de una conexión de worker,
// usada por monitoreo y presencia.
type WorkerInfo struct {
	ID           string      `json:"id"`
	RemoteAddr   string      `json:"remote_addr"`
	Codec        string      `json:"codec"`
	State        WorkerState `json:"state"`
	ConnectedAt  time.Time   `json:"connected_at"`
	LastActivity time.Time   `json:"last_activity"`
	InFlight     int         `json:"in_flight"`
}

// ---- MENSAJES ----

// ImageRequest viaja del gateway al worker.
// RequestID es la clave de correlación que el worker debe devolver tal cual.
type ImageRequest struct {
	RequestID uuid.UUID `json:"request_id"`
	ImageData []byte    `json:"image_data,omitempty"`
}

// ImageResponse viaja del worker al gateway con el resultado procesado.
type ImageResponse struct {
	RequestID          uuid.UUID `json:"request_id"`
	ProcessedImageData []byte    `json:"processed_image_data,omitempty"`
}

// ImageMessage es la unión etiquetada que circula por el canal del worker.
// Un mensaje válido tiene exactamente uno de los dos campos.
type ImageMessage struct {
	Request  *ImageRequest  `json:"Request,omitempty"`
	Response *ImageResponse `json:"Response,omitempty"`
}

// Valid reports whether exactly one shape is set.
func (m ImageMessage) Valid() bool {
	return (m.Request == nil) != (m.Response == nil)
}

func NewRequestMessage(id uuid.UUID, data []byte) ImageMessage {
	return ImageMessage{Request: &ImageRequest{RequestID: id, ImageData: data}}
}

func NewResponseMessage(id uuid.UUID, data []byte) ImageMessage {
	return ImageMessage{Response: &ImageResponse{RequestID: id, ProcessedImageData: data}}
}
