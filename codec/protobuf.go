package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes proto.Message values. Results must be pointer message
// types (e.g. *mypb.User); Unmarshal allocates the message when the target
// pointer is nil.
type Protobuf struct{}

var _ Codec = Protobuf{}

func (Protobuf) Name() string { return "protobuf" }

func (Protobuf) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: protobuf cannot marshal %T", v)
	}
	return proto.Marshal(m)
}

func (Protobuf) Unmarshal(b []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(b, m)
	}
	// v is a pointer to a message pointer, e.g. **mypb.User
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Pointer {
		return fmt.Errorf("codec: protobuf cannot unmarshal into %T", v)
	}
	elem := rv.Elem()
	if elem.IsNil() {
		elem.Set(reflect.New(elem.Type().Elem()))
	}
	m, ok := elem.Interface().(proto.Message)
	if !ok {
		return fmt.Errorf("codec: protobuf cannot unmarshal into %T", v)
	}
	return proto.Unmarshal(b, m)
}
