package wire

import (
	"fmt"

	"goforward/pkg/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackSubprotocol lo ofrece el worker en Sec-WebSocket-Protocol para pedir msgpack.
const MsgpackSubprotocol = "forward.msgpack"

type mpBody struct {
	RequestID string `msgpack:"request_id"`
	Data      []byte `msgpack:"data"`
}

type mpEnvelope struct {
	Request  *mpBody `msgpack:"request,omitempty"`
	Response *mpBody `msgpack:"response,omitempty"`
}

// MsgpackCodec codifica el mensaje entero en un único frame binario.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Encode(msg types.ImageMessage) (int, []byte, error) {
	if !msg.Valid() {
		return 0, nil, ErrInvalidMessage
	}

	var env mpEnvelope
	if msg.Request != nil {
		env.Request = &mpBody{RequestID: msg.Request.RequestID.String(), Data: msg.Request.ImageData}
	} else {
		env.Response = &mpBody{RequestID: msg.Response.RequestID.String(), Data: msg.Response.ProcessedImageData}
	}

	data, err := msgpack.Marshal(&env)
	if err != nil {
		return 0, nil, fmt.Errorf("wire: msgpack encode: %w", err)
	}
	return websocket.BinaryMessage, data, nil
}

func (MsgpackCodec) Decode(frameType int, data []byte) (types.ImageMessage, error) {
	if frameType != websocket.BinaryMessage {
		return types.ImageMessage{}, fmt.Errorf("wire: msgpack expects binary frames, got type %d", frameType)
	}

	var env mpEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return types.ImageMessage{}, fmt.Errorf("wire: msgpack decode: %w", err)
	}
	if (env.Request == nil) == (env.Response == nil) {
		return types.ImageMessage{}, ErrInvalidMessage
	}

	body := env.Request
	if body == nil {
		body = env.Response
	}
	id, err := uuid.Parse(body.RequestID)
	if err != nil {
		return types.ImageMessage{}, fmt.Errorf("wire: msgpack request_id: %w", err)
	}

	if env.Request != nil {
		return types.NewRequestMessage(id, body.Data), nil
	}
	return types.NewResponseMessage(id, body.Data), nil
}
