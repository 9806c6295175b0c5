// Package utils holds the small zero-allocation helpers internal/debug
// depends on. Carried over from the teacher repository's utils package;
// the JSON/hex micro-scanners, unsafe byte-slice casts, and hash mixer
// that existed only to parse Ethereum WebSocket frames and feed a
// fingerprint-based dedup ring were dropped — nothing in this module
// parses JSON, hex, or needs a hash mixer.
package utils

import "os"

// Itoa renders a base-10 integer without going through strconv/fmt. No
// package in this module calls it at present; internal/debug uses only
// PrintWarning.
//
//go:nosplit
//go:inline
func Itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// PrintWarning writes directly to stderr, bypassing the log package's
// timestamp formatting and allocation.
//
//go:nosplit
//go:inline
func PrintWarning(msg string) {
	os.Stderr.WriteString(msg)
}
