package protocol

// Vector2 is a world position or velocity. On the wire each axis is lerped
// into a uint16 over [-50, 50], so precision is roughly 0.0015 units.
type Vector2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

const (
	vectorMin = -50
	vectorMax = 50
)

func lerpToUint16(v float32) uint16 {
	t := (v - vectorMin) / (vectorMax - vectorMin)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return uint16(t * 65535)
}

func uint16ToLerp(v uint16) float32 {
	t := float32(v) / 65535
	return vectorMin + (vectorMax-vectorMin)*t
}

// Add returns v + o.
func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Scale returns v scaled by f.
func (v Vector2) Scale(f float32) Vector2 {
	return Vector2{X: v.X * f, Y: v.Y * f}
}
