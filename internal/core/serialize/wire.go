// Package serialize is the version-tagged binary wire format for every
// value that crosses the sandbox boundary: ReceiveBuf, SendBuf, and the
// MessageData values the router hands across a guest's inbox/outbox.
//
// Framing (length prefixes, presence flags, string/bytes encoding) is
// built on github.com/tinylib/msgp/msgp's buffer-append primitives —
// the same runtime package the retrieval pack's aistore teachers depend
// on for their own wire objects, used here by hand instead of through
// the msgp code generator. Every multi-byte integer value this layer
// defines (entity ids, enum tags, the system index) is packed
// little-endian before being handed to msgp as an opaque byte string,
// which is how §4.7's "endianness-fixed (little-endian)" requirement and
// msgpack's own big-endian length prefixes coexist: the prefixes and the
// element counts of arrays are msgp framing, the values are ours.
package serialize

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"

	"hostengine/internal/core/guest"
)

// formatVersion is the first byte of every encoded buffer. A future
// incompatible change to the framing below bumps this and DecodeError
// rejects anything else.
const formatVersion byte = 1

// ErrDecodeError is returned wrapped in a *guest.DecodeError whenever a
// buffer fails to parse: wrong version, malformed framing, or leftover
// bytes after a structurally complete value is decoded.
var ErrDecodeError = errors.New("serialize: decode error")

func decodeErr(cause error) error {
	return &guest.DecodeError{Cause: errors.Wrap(ErrDecodeError, cause.Error())}
}

func appendU64(b []byte, v uint64) []byte {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], v)
	return msgp.AppendBytes(b, raw[:])
}

func readU64(b []byte) (uint64, []byte, error) {
	raw, rest, err := msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) != 8 {
		return 0, nil, errors.Errorf("u64 field: want 8 bytes, got %d", len(raw))
	}
	return binary.LittleEndian.Uint64(raw), rest, nil
}

func appendI32(b []byte, v int32) []byte {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(v))
	return msgp.AppendBytes(b, raw[:])
}

func readI32(b []byte) (int32, []byte, error) {
	raw, rest, err := msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) != 4 {
		return 0, nil, errors.Errorf("i32 field: want 4 bytes, got %d", len(raw))
	}
	return int32(binary.LittleEndian.Uint32(raw)), rest, nil
}

func appendString(b []byte, s string) []byte {
	return msgp.AppendString(b, s)
}

func readString(b []byte) (string, []byte, error) {
	return msgp.ReadStringBytes(b)
}

func appendBytes(b []byte, v []byte) []byte {
	return msgp.AppendBytes(b, v)
}

func readBytes(b []byte) ([]byte, []byte, error) {
	v, rest, err := msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return nil, nil, err
	}
	return append([]byte(nil), v...), rest, nil
}

func appendBool(b []byte, v bool) []byte {
	return msgp.AppendBool(b, v)
}

func readBool(b []byte) (bool, []byte, error) {
	return msgp.ReadBoolBytes(b)
}

func appendArrayHeader(b []byte, n int) []byte {
	return msgp.AppendArrayHeader(b, uint32(n))
}

func readArrayHeader(b []byte) (int, []byte, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return 0, nil, err
	}
	return int(n), rest, nil
}

// appendOptionalString encodes a *string as a presence bool followed by
// the string when present. Used for MessageData.ClientID.
func appendOptionalString(b []byte, v *string) []byte {
	if v == nil {
		return appendBool(b, false)
	}
	b = appendBool(b, true)
	return appendString(b, *v)
}

func readOptionalString(b []byte) (*string, []byte, error) {
	present, rest, err := readBool(b)
	if err != nil {
		return nil, nil, err
	}
	if !present {
		return nil, rest, nil
	}
	s, rest, err := readString(rest)
	if err != nil {
		return nil, nil, err
	}
	return &s, rest, nil
}

// appendOptionalInt encodes a *int as a presence bool followed by an i32.
// Used for ReceiveBuf.System, which is nil on the init turn.
func appendOptionalInt(b []byte, v *int) []byte {
	if v == nil {
		return appendBool(b, false)
	}
	b = appendBool(b, true)
	return appendI32(b, int32(*v))
}

func readOptionalInt(b []byte) (*int, []byte, error) {
	present, rest, err := readBool(b)
	if err != nil {
		return nil, nil, err
	}
	if !present {
		return nil, rest, nil
	}
	n, rest, err := readI32(rest)
	if err != nil {
		return nil, nil, err
	}
	v := int(n)
	return &v, rest, nil
}

// finish rejects trailing garbage: a structurally complete value must
// consume the entire buffer.
func finish(rest []byte) error {
	if len(rest) != 0 {
		return decodeErr(errors.Errorf("%d trailing byte(s) after decode", len(rest)))
	}
	return nil
}

func checkVersion(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, decodeErr(errors.New("empty buffer"))
	}
	if b[0] != formatVersion {
		return nil, decodeErr(errors.Errorf("unsupported format version %d", b[0]))
	}
	return b[1:], nil
}
