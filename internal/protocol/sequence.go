package protocol

// SequenceGreaterThan reports whether newSeq is "after" oldSeq in a modular
// sequence space of the given bit width (8, 16 or 32 in practice).
//
// newSeq is greater when it lies in the forward half of the space starting
// just past oldSeq: (oldSeq, oldSeq + 2^(bits-1) - 1] modulo 2^bits. This
// rejects stale or duplicated updates that arrive out of order while still
// accepting values that wrapped around the integer width.
func SequenceGreaterThan(newSeq, oldSeq uint32, bits uint) bool {
	if bits == 0 || bits > 32 {
		panic("protocol: sequence width must be between 1 and 32 bits")
	}
	mask := uint32(uint64(1)<<bits - 1)
	threshold := uint32(1) << (bits - 1)
	diff := (newSeq - oldSeq) & mask
	return diff != 0 && diff < threshold
}

// Seq16GreaterThan is SequenceGreaterThan for 16-bit movement sequence ids.
func Seq16GreaterThan(newSeq, oldSeq uint16) bool {
	return SequenceGreaterThan(uint32(newSeq), uint32(oldSeq), 16)
}

// Seq8GreaterThan is SequenceGreaterThan for 8-bit ladder and platform ids.
func Seq8GreaterThan(newSeq, oldSeq uint8) bool {
	return SequenceGreaterThan(uint32(newSeq), uint32(oldSeq), 8)
}

// Seq32GreaterThan is SequenceGreaterThan for 32-bit counters such as the
// lobby countdown.
func Seq32GreaterThan(newSeq, oldSeq uint32) bool {
	return SequenceGreaterThan(newSeq, oldSeq, 32)
}
