package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"goforward/pkg/types"

	"github.com/gorilla/websocket"
)

var (
	ErrInvalidMessage = errors.New("wire: message must carry exactly one of Request or Response")
	ErrShortFrame     = errors.New("wire: frame shorter than its declared header")
)

const headerLenSize = 4

// Codec traduce entre ImageMessage y frames de websocket.
type Codec interface {
	Name() string
	Encode(msg types.ImageMessage) (frameType int, data []byte, err error)
	Decode(frameType int, data []byte) (types.ImageMessage, error)
}

// ForSubprotocol devuelve el codec negociado durante el upgrade.
// Un subprotocolo vacío o desconocido usa FrameCodec.
func ForSubprotocol(name string) Codec {
	if name == MsgpackSubprotocol {
		return MsgpackCodec{}
	}
	return FrameCodec{}
}

// FrameCodec es el formato por defecto, compatible con el worker C++:
//
//	uint32 LE (largo del header) | header JSON | bytes crudos del payload
//
// Los frames de texto se interpretan como el mensaje completo en JSON.
type FrameCodec struct{}

func (FrameCodec) Name() string { return "frame" }

func (FrameCodec) Encode(msg types.ImageMessage) (int, []byte, error) {
	if !msg.Valid() {
		return 0, nil, ErrInvalidMessage
	}

	var (
		header  types.ImageMessage
		payload []byte
	)
	switch {
	case msg.Request != nil:
		header.Request = &types.ImageRequest{RequestID: msg.Request.RequestID}
		payload = msg.Request.ImageData
	default:
		header.Response = &types.ImageResponse{RequestID: msg.Response.RequestID}
		payload = msg.Response.ProcessedImageData
	}

	js, err := json.Marshal(header)
	if err != nil {
		return 0, nil, fmt.Errorf("wire: encode header: %w", err)
	}

	out := make([]byte, headerLenSize+len(js)+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(js)))
	copy(out[headerLenSize:], js)
	copy(out[headerLenSize+len(js):], payload)
	return websocket.BinaryMessage, out, nil
}

func (FrameCodec) Decode(frameType int, data []byte) (types.ImageMessage, error) {
	var msg types.ImageMessage

	if frameType == websocket.TextMessage {
		if err := json.Unmarshal(data, &msg); err != nil {
			return msg, fmt.Errorf("wire: decode text frame: %w", err)
		}
		if !msg.Valid() {
			return types.ImageMessage{}, ErrInvalidMessage
		}
		return msg, nil
	}

	if len(data) < headerLenSize {
		return msg, ErrShortFrame
	}
	n := binary.LittleEndian.Uint32(data[:headerLenSize])
	if uint64(len(data)-headerLenSize) < uint64(n) {
		return msg, ErrShortFrame
	}
	end := headerLenSize + int(n)

	if err := json.Unmarshal(data[headerLenSize:end], &msg); err != nil {
		return types.ImageMessage{}, fmt.Errorf("wire: decode header: %w", err)
	}
	if !msg.Valid() {
		return types.ImageMessage{}, ErrInvalidMessage
	}

	payload := append([]byte(nil), data[end:]...)
	if msg.Request != nil {
		msg.Request.ImageData = payload
	} else {
		msg.Response.ProcessedImageData = payload
	}
	return msg, nil
}
