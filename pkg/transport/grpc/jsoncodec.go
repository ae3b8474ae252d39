package grpc

import (
    "encoding/json"
    "fmt"

    "google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec carries frameMsg and subscribeReq as JSON so the Frames service
// needs no protobuf codegen.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
    switch v.(type) {
    case *frameMsg, *subscribeReq:
        return json.Marshal(v)
    default:
        return nil, fmt.Errorf("grpc transport: cannot encode %T", v)
    }
}

func (jsonCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

func (jsonCodec) Name() string { return codecName }

func init() { encoding.RegisterCodec(jsonCodec{}) }
