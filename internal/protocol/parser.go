package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortRead is recorded when a read runs past the end of the payload.
var ErrShortRead = errors.New("protocol: short read")

// Reader decodes Hazel-encoded payloads.
//
// The first failure is sticky: once a read runs short every later read
// returns a zero value and Err reports the original cause. Deserializers
// read a whole record and check Err once at the end.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader creates a Reader over data. The slice is not copied.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered while reading.
func (r *Reader) Err() error {
	return r.err
}

// Left returns the number of unread bytes.
func (r *Reader) Left() int {
	if r.err != nil {
		return 0
	}
	return len(r.data) - r.pos
}

// Pos returns the current read offset.
func (r *Reader) Pos() int {
	return r.pos
}

// Buffer returns the whole underlying payload.
func (r *Reader) Buffer() []byte {
	return r.data
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("failed to read %d bytes at offset %d (have %d): %w", n, r.pos, len(r.data)-r.pos, ErrShortRead)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() int8 {
	return int8(r.ReadUint8())
}

// ReadBool reads a boolean byte (any non-zero value is true).
func (r *Reader) ReadBool() bool {
	return r.ReadUint8() != 0
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadInt16 reads a little-endian int16.
func (r *Reader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadInt32 reads a little-endian int32.
func (r *Reader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

// ReadFloat32 reads a little-endian IEEE-754 float32.
func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadUint32())
}

// ReadPackedUint32 reads a 7-bit packed unsigned integer.
func (r *Reader) ReadPackedUint32() uint32 {
	var (
		v     uint32
		shift uint
	)
	for i := 0; i < 5; i++ {
		b := r.take(1)
		if b == nil {
			return 0
		}
		v |= uint32(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return v
		}
		shift += 7
	}
	if r.err == nil {
		r.err = fmt.Errorf("failed to read packed integer at offset %d: too many bytes", r.pos)
	}
	return 0
}

// ReadPackedInt32 reads a packed integer and reinterprets it as signed.
func (r *Reader) ReadPackedInt32() int32 {
	return int32(r.ReadPackedUint32())
}

// ReadString reads a packed-length-prefixed string.
func (r *Reader) ReadString() string {
	n := r.ReadPackedUint32()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

// ReadBytes reads n raw bytes. The result aliases the payload.
func (r *Reader) ReadBytes(n int) []byte {
	return r.take(n)
}

// ReadBytesAndSize reads a packed length followed by that many bytes.
func (r *Reader) ReadBytesAndSize() []byte {
	n := r.ReadPackedUint32()
	return r.take(int(n))
}

// ReadRemaining returns every unread byte and moves to the end.
func (r *Reader) ReadRemaining() []byte {
	if r.err != nil {
		return nil
	}
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

// ReadVector2 reads a lerped position.
func (r *Reader) ReadVector2() Vector2 {
	x := r.ReadUint16()
	y := r.ReadUint16()
	return Vector2{X: uint16ToLerp(x), Y: uint16ToLerp(y)}
}

// ReadMessage reads one tagged sub-message and returns a Reader scoped to
// its payload. The parent reader advances past the whole message.
// Format: [length:2][tag:1][payload...]
func (r *Reader) ReadMessage() (tag byte, sub *Reader) {
	length := r.ReadUint16()
	tag = r.ReadUint8()
	payload := r.take(int(length))
	if payload == nil {
		return tag, &Reader{err: r.err}
	}
	return tag, NewReader(payload)
}

// Messages calls fn for every tagged sub-message left in the reader, stopping
// at the first error from fn or from framing.
func (r *Reader) Messages(fn func(tag byte, sub *Reader) error) error {
	for r.Left() > 0 {
		tag, sub := r.ReadMessage()
		if r.err != nil {
			return r.err
		}
		if err := fn(tag, sub); err != nil {
			return err
		}
	}
	return r.err
}
