package main

import "encoding/hex"

type sha256SumFunc func([]byte) [32]byte

var sha256Sum sha256SumFunc

// snapshotETag returns a strong entity tag for a raw snapshot body.
func snapshotETag(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	sum := sha256Sum(raw)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
