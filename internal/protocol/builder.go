package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Writer builds Hazel-encoded payloads. All multi-byte values are little-endian.
type Writer struct {
	buf   bytes.Buffer
	stack []int
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Reset clears the writer for reuse.
func (w *Writer) Reset() {
	w.buf.Reset()
	w.stack = w.stack[:0]
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(v uint8) *Writer {
	w.buf.WriteByte(v)
	return w
}

// WriteInt8 writes a signed byte.
func (w *Writer) WriteInt8(v int8) *Writer {
	w.buf.WriteByte(byte(v))
	return w
}

// WriteBool writes a boolean as a single byte.
func (w *Writer) WriteBool(v bool) *Writer {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

// WriteUint16 writes a uint16 in little-endian order.
func (w *Writer) WriteUint16(v uint16) *Writer {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
	return w
}

// WriteInt16 writes an int16 in little-endian order.
func (w *Writer) WriteInt16(v int16) *Writer {
	return w.WriteUint16(uint16(v))
}

// WriteUint32 writes a uint32 in little-endian order.
func (w *Writer) WriteUint32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
	return w
}

// WriteInt32 writes an int32 in little-endian order.
func (w *Writer) WriteInt32(v int32) *Writer {
	return w.WriteUint32(uint32(v))
}

// WriteFloat32 writes an IEEE-754 float32 in little-endian order.
func (w *Writer) WriteFloat32(v float32) *Writer {
	return w.WriteUint32(math.Float32bits(v))
}

// WritePackedUint32 writes a 7-bit packed unsigned integer.
// Each byte carries 7 bits of the value, high bit set when more bytes follow.
func (w *Writer) WritePackedUint32(v uint32) *Writer {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return w
		}
	}
}

// WritePackedInt32 writes a signed integer in packed form (two's complement
// reinterpreted as unsigned, so negative values take five bytes).
func (w *Writer) WritePackedInt32(v int32) *Writer {
	return w.WritePackedUint32(uint32(v))
}

// WriteString writes a packed-length-prefixed UTF-8 string.
// Format: [length:packed][string bytes...]
func (w *Writer) WriteString(s string) *Writer {
	w.WritePackedUint32(uint32(len(s)))
	w.buf.WriteString(s)
	return w
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(data []byte) *Writer {
	w.buf.Write(data)
	return w
}

// WriteBytesAndSize writes a packed length followed by the raw bytes.
func (w *Writer) WriteBytesAndSize(data []byte) *Writer {
	w.WritePackedUint32(uint32(len(data)))
	w.buf.Write(data)
	return w
}

// WriteVector2 writes a position as two lerped uint16 values.
func (w *Writer) WriteVector2(v Vector2) *Writer {
	w.WriteUint16(lerpToUint16(v.X))
	w.WriteUint16(lerpToUint16(v.Y))
	return w
}

// Begin opens a tagged sub-message. The 2-byte length is patched by End.
// Format: [length:2][tag:1][payload...]
func (w *Writer) Begin(tag byte) *Writer {
	w.stack = append(w.stack, w.buf.Len())
	w.WriteUint16(0)
	w.WriteUint8(tag)
	return w
}

// End closes the innermost sub-message opened by Begin.
func (w *Writer) End() *Writer {
	if len(w.stack) == 0 {
		panic("protocol: End called without a matching Begin")
	}
	start := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	length := w.buf.Len() - start - LengthPrefixSize - 1
	if length > MaxMessageSize {
		panic(fmt.Sprintf("protocol: message too large: %d bytes (max %d)", length, MaxMessageSize))
	}
	binary.LittleEndian.PutUint16(w.buf.Bytes()[start:start+2], uint16(length))
	return w
}

// WriteMessage writes a complete tagged sub-message around payload.
func (w *Writer) WriteMessage(tag byte, payload []byte) *Writer {
	w.Begin(tag)
	w.WriteBytes(payload)
	return w.End()
}

// Bytes returns the constructed payload. The slice aliases the writer's
// buffer until the next write.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Copy returns a copy of the constructed payload that survives Reset.
func (w *Writer) Copy() []byte {
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())
	return out
}

// Len returns the current size of the payload being built.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// String returns a hex dump of the current payload for debugging.
func (w *Writer) String() string {
	data := w.buf.Bytes()
	return fmt.Sprintf("Writer[%d bytes]: %x", len(data), data)
}
