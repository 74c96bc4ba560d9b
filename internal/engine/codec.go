package engine

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype both ends of the engine link speak.
const codecName = "json"

// jsonCodec carries RPC payloads as plain JSON so the engine link needs no
// generated protobuf stubs. Registration is by name, so the same codec serves
// client and server ends.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
