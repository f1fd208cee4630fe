package vct

import (
	"fmt"
	"strings"
)

// FormatHex renders b as space separated uppercase 0xNN values
func FormatHex(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "0x%02X", v)
	}
	return sb.String()
}
