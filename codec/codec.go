package codec

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode matches every error returned by a Decode method.
var ErrDecode = errors.New("codec: decode failed")

// Codec encodes and decodes values of type V.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Decode errors match ErrDecode.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// JSON encodes values with encoding/json. The zero value is ready to use.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

// Encode marshals v as JSON.
func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

// Decode unmarshals b into a V.
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	if err := json.Unmarshal(b, &v); err != nil {
		return v, decodeErr("json", err)
	}
	return v, nil
}

// Raw passes byte slices through unchanged.
type Raw struct{}

var _ Codec[[]byte] = Raw{}

func (Raw) Encode(v []byte) ([]byte, error) { return v, nil }
func (Raw) Decode(b []byte) ([]byte, error) { return b, nil }

func decodeErr(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
}
