package helpers

import (
	"strings"

	"github.com/rstms/hybridiso/pkg/consts"
)

// PadString returns s truncated or space padded to exactly length bytes.
func PadString(s string, length int) []byte {
	b := make([]byte, length)
	n := copy(b, s)
	for i := n; i < length; i++ {
		b[i] = consts.ISO9660_FILLER
	}
	return b
}

// ZeroPadString returns s truncated or zero padded to exactly length bytes.
func ZeroPadString(s string, length int) []byte {
	b := make([]byte, length)
	copy(b, s)
	return b
}

// IdentifierName returns the on-disc form of a tree name (upper-cased ASCII).
func IdentifierName(name string) string {
	return strings.ToUpper(name)
}

// IsPrintableASCII reports whether every byte of s is a printable ASCII character.
func IsPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
