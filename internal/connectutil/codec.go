package connectutil

import (
	"encoding/json"
	"fmt"
)

// JSONCodec lets Connect carry plain Go structs as JSON, so services can be
// declared without generated protobuf messages.
type JSONCodec struct{}

// Name returns "json", replacing Connect's protobuf-JSON codec.
func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
