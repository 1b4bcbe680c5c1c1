package wire

import (
	"fmt"

	"github.com/hilthontt/quizchat/internal/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

type encoder struct {
	b []byte
}

func (e *encoder) string(num protowire.Number, s string) {
	if s == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, s)
}

func (e *encoder) int64(num protowire.Number, v int64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, uint64(v))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if !v {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, protowire.EncodeBool(v))
}

// message always emits the field, so an empty payload still selects its
// oneof branch.
func (e *encoder) message(num protowire.Number, sub []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, sub)
}

// field is one decoded key/value pair. Accessors return zero values when the
// wire type does not match, so schema drift degrades to defaults.
type field struct {
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f field) int64() int64 {
	if f.typ != protowire.VarintType {
		return 0
	}
	return int64(f.varint)
}

func (f field) bool() bool {
	if f.typ != protowire.VarintType {
		return false
	}
	return protowire.DecodeBool(f.varint)
}

func (f field) string() string {
	if f.typ != protowire.BytesType {
		return ""
	}
	return string(f.bytes)
}

// sub returns the embedded message bytes and whether the field holds one.
func (f field) sub() ([]byte, bool) {
	if f.typ != protowire.BytesType {
		return nil, false
	}
	return f.bytes, true
}

func malformed(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
}

func forEachField(b []byte, fn func(num protowire.Number, f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(n)
		}
		b = b[n:]

		f := field{typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return malformed(n)
		}
		b = b[n:]

		if err := fn(num, f); err != nil {
			return err
		}
	}
	return nil
}

func encodeUser(u domain.UserDisplay) []byte {
	var e encoder
	e.int64(userID, u.ID)
	e.string(userUsername, u.Username)
	e.string(userFullName, u.FullName)
	if u.Avatar != nil {
		e.string(userAvatar, *u.Avatar)
	}
	return e.b
}

func decodeUser(b []byte) (domain.UserDisplay, error) {
	var u domain.UserDisplay
	err := forEachField(b, func(num protowire.Number, f field) error {
		switch num {
		case userID:
			u.ID = f.int64()
		case userUsername:
			u.Username = f.string()
		case userFullName:
			u.FullName = f.string()
		case userAvatar:
			u.Avatar = domain.NormalizeAvatar(f.string())
		}
		return nil
	})
	return u, err
}
