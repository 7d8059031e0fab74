package codec

import "encoding/json"

// JSON stores values as JSON text. It is the default for the in-memory and
// sqlite backends.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Name() string                    { return "json" }
func (JSON) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSON) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
