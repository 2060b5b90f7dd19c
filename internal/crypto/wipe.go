package crypto

import "runtime"

// Wipe zeroes b. This is best-effort; the Go runtime may already have copied
// the contents elsewhere.
//
//go:noinline
func Wipe(b []byte) {
	clear(b)
	runtime.KeepAlive(&b)
}

// Wipe32 zeroes a fixed-size key in place.
func Wipe32(k *[32]byte) {
	if k != nil {
		Wipe(k[:])
	}
}
