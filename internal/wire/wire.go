// Package wire frames values kept in opaque byte stores (redis, bigcache) so
// that foreign or damaged bytes under a potency key are detected on fetch
// instead of being handed to a codec.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

const (
	version byte = 1
	hdrLen       = 4 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("potency: corrupt entry")
	magic4     = [...]byte{'P', 'T', 'C', 'Y'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames payload.
//
//	magic(4) | ver(1) | sum(u64 be, xxhash64 of payload) | vlen(u32 be) | payload(vlen)
func Encode(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], xxhash.Sum64(payload))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode returns the payload of a frame produced by Encode. The returned slice
// aliases b.
func Decode(b []byte) ([]byte, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return nil, ErrCorrupt
	}
	off := 5

	sum := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// exact length; trailing bytes are corruption
	if vlen < 0 || vlen != len(b)-off {
		return nil, ErrCorrupt
	}

	payload := b[off : off+vlen]
	if xxhash.Sum64(payload) != sum {
		return nil, ErrCorrupt
	}
	return payload, nil
}
