package codec

import (
	"reflect"
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type triple struct {
	A uint32   `json:"a" msgpack:"a" cbor:"a"`
	B float32  `json:"b" msgpack:"b" cbor:"b"`
	C string   `json:"c" msgpack:"c" cbor:"c"`
	D []string `json:"d" msgpack:"d" cbor:"d"`
}

func roundTrip[V any](t *testing.T, c Codec, v V) V {
	t.Helper()
	tc := For[V](c)
	b, err := tc.Encode(v)
	if err != nil {
		t.Fatalf("%s encode: %v", c.Name(), err)
	}
	got, err := tc.Decode(b)
	if err != nil {
		t.Fatalf("%s decode: %v", c.Name(), err)
	}
	return got
}

func TestRoundTripStockCodecs(t *testing.T) {
	codecs := []Codec{JSON{}, Msgpack{}, MustCBOR(true), MustCBOR(false)}
	in := triple{A: 0, B: 1.0, C: "goodbye", D: []string{"x", "y"}}
	for _, c := range codecs {
		if got := roundTrip(t, c, in); !reflect.DeepEqual(got, in) {
			t.Fatalf("%s: got %+v want %+v", c.Name(), got, in)
		}
		if got := roundTrip(t, c, "500 hello"); got != "500 hello" {
			t.Fatalf("%s: string round trip got %q", c.Name(), got)
		}
		if got := roundTrip(t, c, uint32(6)); got != 6 {
			t.Fatalf("%s: uint32 round trip got %d", c.Name(), got)
		}
		if got := roundTrip(t, c, struct{}{}); got != struct{}{} {
			t.Fatalf("%s: unit round trip", c.Name())
		}
	}
}

func TestCBORDeterministic(t *testing.T) {
	c := MustCBOR(true)
	a, err := c.Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		b, _ := c.Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
		if string(a) != string(b) {
			t.Fatalf("deterministic CBOR differs between runs")
		}
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	in := wrapperspb.String("hello")
	got := roundTrip[*wrapperspb.StringValue](t, Protobuf{}, in)
	if !proto.Equal(got, in) {
		t.Fatalf("got %v want %v", got, in)
	}

	if _, err := (Protobuf{}).Marshal("not a message"); err == nil {
		t.Fatalf("expected error marshaling non-message")
	}
	var s string
	if err := (Protobuf{}).Unmarshal(nil, &s); err == nil {
		t.Fatalf("expected error unmarshaling into *string")
	}
}

func TestRaw(t *testing.T) {
	if got := roundTrip(t, Raw{}, []byte{1, 2, 3}); !reflect.DeepEqual(got, []byte{1, 2, 3}) {
		t.Fatalf("bytes: %v", got)
	}
	if got := roundTrip(t, Raw{}, "abc"); got != "abc" {
		t.Fatalf("string: %q", got)
	}
	if _, err := (Raw{}).Marshal(42); err == nil {
		t.Fatalf("expected error for int")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit{Inner: JSON{}, MaxDecode: 8}
	b, err := c.Marshal(strings.Repeat("x", 20))
	if err != nil {
		t.Fatal(err)
	}
	var s string
	if err := c.Unmarshal(b, &s); err == nil || !strings.Contains(err.Error(), "payload too large") {
		t.Fatalf("expected size error, got %v", err)
	}
	if err := c.Unmarshal([]byte(`"ok"`), &s); err != nil || s != "ok" {
		t.Fatalf("small payload: s=%q err=%v", s, err)
	}
	if c.Name() != "json" {
		t.Fatalf("Name = %q", c.Name())
	}
}

func TestTypedDecodeMismatch(t *testing.T) {
	b, _ := JSON{}.Marshal("text")
	if _, err := For[int](JSON{}).Decode(b); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

func TestByName(t *testing.T) {
	for _, n := range []string{"json", "msgpack", "cbor", "protobuf", "raw"} {
		c, err := ByName(n)
		if err != nil {
			t.Fatalf("ByName(%q): %v", n, err)
		}
		if c.Name() != n {
			t.Fatalf("ByName(%q).Name() = %q", n, c.Name())
		}
	}
	if _, err := ByName("yaml"); err == nil {
		t.Fatalf("expected unknown codec error")
	}
}
