// Package codec converts cacheable values to and from the bytes a backend
// persists.
//
// A Codec is associated with a backend (or overridden per store) and works on
// arbitrary values, so one store can memoize functions of many result types.
// Typed is the per-type view the engine uses: For[V](c) binds a Codec to V.
//
// Every codec must round-trip: Decode(Encode(v)) == v for the values it
// supports.
package codec

import "fmt"

// Codec serializes values for storage.
type Codec interface {
	// Name identifies the codec in errors and logs.
	Name() string
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes b into the value pointed to by v.
	Unmarshal(b []byte, v any) error
}

// Typed encodes/decodes values V to []byte for storage.
type Typed[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// For returns the typed view of c for V.
func For[V any](c Codec) Typed[V] { return typed[V]{c: c} }

type typed[V any] struct{ c Codec }

func (t typed[V]) Encode(v V) ([]byte, error) { return t.c.Marshal(v) }
func (t typed[V]) Decode(b []byte) (V, error) {
	var v V
	err := t.c.Unmarshal(b, &v)
	return v, err
}

// ByName returns one of the stock codecs. CBOR is the deterministic variant.
func ByName(name string) (Codec, error) {
	switch name {
	case "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	case "cbor":
		return NewCBOR(true)
	case "protobuf":
		return Protobuf{}, nil
	case "raw":
		return Raw{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
