package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func mustDecode(t *testing.T, b []byte) []byte {
	t.Helper()
	p, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return p
}

func TestRoundTripEmptyAndNonEmpty(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("hello"),
		{0, 1, 2, 3, 4},
		bytes.Repeat([]byte{0xAB}, 4096),
	}
	for _, payload := range cases {
		enc := Encode(payload)
		p := mustDecode(t, enc)
		if !bytes.Equal(p, payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, payload)
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := Encode([]byte("x"))
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode([]byte("abc"))

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// vlen at offset 13..16 (4 magic +1 ver +8 sum)
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[13:17], uint32(len("abc")+1))
	if _, err := Decode(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	// truncated buffer
	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, err := Decode(enc[:3]); err == nil {
		t.Fatalf("expected error on short header")
	}
}

func TestChecksumDetectsFlippedPayload(t *testing.T) {
	enc := Encode([]byte(`{"name":"ada"}`))
	enc[len(enc)-2] ^= 0xFF
	if _, err := Decode(enc); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestForeignBytesRejected(t *testing.T) {
	if _, err := Decode([]byte(`"plain json written by someone else"`)); err == nil {
		t.Fatalf("expected error on foreign bytes")
	}
}

func TestZeroCopyPayload(t *testing.T) {
	enc := Encode([]byte("Z"))
	p := mustDecode(t, enc)
	if &p[0] != &enc[len(enc)-1] {
		t.Fatalf("expected payload to alias the frame")
	}
}
