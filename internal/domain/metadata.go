package domain

import (
	"encoding/json"
	"fmt"
)

// Metadata is an opaque string-keyed payload attached to ledger entries.
// Values are restricted to JSON primitives; ledger logic never inspects them.
type Metadata map[string]any

func (m Metadata) Validate() error {
	for k, v := range m {
		switch v.(type) {
		case nil, string, bool, int, int32, int64, float32, float64, json.Number:
		default:
			return fmt.Errorf("metadata key %q: unsupported value type %T: %w", k, v, ErrInvalidRequest)
		}
	}
	return nil
}

func (m Metadata) MarshalValue() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

func UnmarshalMetadata(raw []byte) (Metadata, error) {
	if len(raw) == 0 {
		return Metadata{}, nil
	}
	m := Metadata{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("UnmarshalMetadata: %w", err)
	}
	return m, nil
}
