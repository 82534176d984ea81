// ABOUTME: Registers a JSON content-subtype codec for grpc-go
// ABOUTME: Lets the two streams move plain structs without protoc codegen
package session

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the content-subtype grpc-go negotiates for this
// codec; it ends up on the wire as "application/grpc+json".
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec by delegating straight to
// encoding/json, so the two streams exchange plain Go structs instead
// of protoc-generated proto.Message values.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("session: json marshal: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("session: json unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return jsonCodecName
}
