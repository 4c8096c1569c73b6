package ifc

import (
	"strings"

	"github.com/google/uuid"
)

// guidAlphabet is the IFC base-64 alphabet used for compressed GlobalIds.
const guidAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_$"

// CompressGUID encodes a UUID as the 22-character IFC GlobalId.
func CompressGUID(u uuid.UUID) string {
	out := make([]byte, 0, 22)
	out = appendDigits(out, uint32(u[0]), 2)
	for i := 1; i < 16; i += 3 {
		n := uint32(u[i])<<16 | uint32(u[i+1])<<8 | uint32(u[i+2])
		out = appendDigits(out, n, 4)
	}
	return string(out)
}

// ValidGlobalID checks length and alphabet only.
func ValidGlobalID(id string) bool {
	if len(id) != 22 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(guidAlphabet, id[i]) < 0 {
			return false
		}
	}
	return true
}

func appendDigits(dst []byte, n uint32, digits int) []byte {
	buf := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		buf[i] = guidAlphabet[n%64]
		n /= 64
	}
	return append(dst, buf...)
}
