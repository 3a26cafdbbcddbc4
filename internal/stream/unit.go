package stream

// Unit is one immutable chunk moving from a Source to a Sink. Encoding is the
// hint the Sink uses to render Data as a string; empty means the default
// UTF-8 decode.
type Unit struct {
	data     []byte
	encoding string
}

// String builds a Unit from s with no encoding hint.
func String(s string) Unit {
	return Unit{data: []byte(s)}
}

// Bytes builds a Unit from a copy of b with no encoding hint.
func Bytes(b []byte) Unit {
	return Unit{data: append([]byte(nil), b...)}
}

// Encoded builds a Unit from a copy of b that the Sink renders with encoding.
func Encoded(b []byte, encoding string) Unit {
	return Unit{data: append([]byte(nil), b...), encoding: encoding}
}

// Data returns a copy of the unit's bytes.
func (u Unit) Data() []byte {
	return append([]byte(nil), u.data...)
}

// Encoding returns the unit's encoding hint.
func (u Unit) Encoding() string {
	return u.encoding
}

// Len returns the size of the unit in bytes.
func (u Unit) Len() int {
	return len(u.data)
}

// String returns the raw bytes as a string, ignoring the encoding hint.
func (u Unit) String() string {
	return string(u.data)
}
