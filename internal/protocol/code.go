package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Room codes are either 4 letters (packed as little-endian ASCII, positive)
// or 6 letters (packed through the V2 alphabet, always negative).
const codeV2Alphabet = "QWXRTYLPESDFGHUJKZOCVBINMA"

var codeV2Map = [26]int32{25, 21, 19, 10, 8, 11, 12, 13, 22, 15, 16, 6, 24, 23, 18, 7, 0, 3, 9, 4, 14, 20, 1, 2, 5, 17}

// CodeToInt converts a 4 or 6 letter room code into its packed integer form.
func CodeToInt(code string) (int32, error) {
	code = strings.ToUpper(code)
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return 0, fmt.Errorf("invalid room code %q: letters only", code)
		}
	}

	switch len(code) {
	case 4:
		return int32(binary.LittleEndian.Uint32([]byte(code))), nil
	case 6:
		a := codeV2Map[code[0]-'A']
		b := codeV2Map[code[1]-'A']
		c := codeV2Map[code[2]-'A']
		d := codeV2Map[code[3]-'A']
		e := codeV2Map[code[4]-'A']
		f := codeV2Map[code[5]-'A']

		one := (a + 26*b) & 0x3ff
		two := c + 26*(d+26*(e+26*f))
		return int32(uint32(one) | (uint32(two)<<10)&0x3ffffc00 | 0x80000000), nil
	default:
		return 0, fmt.Errorf("invalid room code %q: must be 4 or 6 letters", code)
	}
}

// IntToCode converts a packed room code back into letters.
func IntToCode(v int32) string {
	if v >= 0 {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		return string(b[:])
	}

	a := int(uint32(v) & 0x3ff)
	b := int((uint32(v) >> 10) & 0xfffff)

	return string([]byte{
		codeV2Alphabet[a%26],
		codeV2Alphabet[a/26],
		codeV2Alphabet[b%26],
		codeV2Alphabet[(b/26)%26],
		codeV2Alphabet[(b/(26*26))%26],
		codeV2Alphabet[(b/(26*26*26))%26],
	})
}
