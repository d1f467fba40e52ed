package loopdetect

import "fmt"

// djb2 hashes s with the classic DJB2 algorithm (seed 5381, h = h*33 + c,
// masked to 32 bits), returning an 8-hex-digit, zero-padded string.
//
// djb2("") == 5381 == 0x00001505.
func djb2(s string) string {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = (h*33 + uint32(s[i])) & 0xFFFFFFFF
	}
	return fmt.Sprintf("%08x", h)
}
