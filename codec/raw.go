package codec

import "fmt"

// Raw passes []byte and string values through unchanged. Useful when results
// are already serialized. By convention strings are assumed UTF-8.
type Raw struct{}

var _ Codec = Raw{}

func (Raw) Name() string { return "raw" }

func (Raw) Marshal(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("codec: raw cannot marshal %T", v)
}

func (Raw) Unmarshal(b []byte, v any) error {
	switch x := v.(type) {
	case *[]byte:
		*x = append([]byte(nil), b...)
		return nil
	case *string:
		*x = string(b)
		return nil
	}
	return fmt.Errorf("codec: raw cannot unmarshal into %T", v)
}
