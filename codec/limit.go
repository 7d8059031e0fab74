package codec

import "fmt"

// Limit wraps another codec to enforce a maximum allowed payload size at
// decode time. Marshal is forwarded to Inner unchanged.
// If MaxDecode <= 0, size limiting is disabled.
//
// Typical use: protect against oversized inputs coming from a shared store.
type Limit struct {
	// Inner is the underlying codec being wrapped. It must be set.
	Inner Codec
	// MaxDecode is the maximum permitted length (in bytes) of a stored payload.
	MaxDecode int
}

var _ Codec = Limit{}

func (c Limit) Name() string                  { return c.Inner.Name() }
func (c Limit) Marshal(v any) ([]byte, error) { return c.Inner.Marshal(v) }
func (c Limit) Unmarshal(b []byte, v any) error {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		return fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Unmarshal(b, v)
}
