// Copyright 2024-2026 Aiku AI

// Package hashid folds opaque protocol identifiers into signed 64-bit keys
// that fit a signed integer database column.
//
// The hash is XXH64 with a fixed seed of zero, so the same identifier always
// maps to the same key, including across restarts and machines. Stored keys
// are relied on by schema upgrades that re-key existing rows, so the
// algorithm must never change without such an upgrade.
package hashid

import (
	"github.com/cespare/xxhash/v2"
)

// MinSigilStripLength is the length above which a leading sigil is dropped
// before hashing.
const MinSigilStripLength = 16

// sigils are the one-character prefixes of Matrix identifiers.
const sigils = "$!@#+"

// Hash returns the signed 64-bit correlation key of the given identifier.
func Hash(identifier string) int64 {
	return Signed(xxhash.Sum64String(trimSigil(identifier)))
}

// Signed converts an unsigned hash into the signed range by subtracting 2^63.
func Signed(unsigned uint64) int64 {
	return int64(unsigned - 1<<63)
}

func trimSigil(identifier string) string {
	if len(identifier) > MinSigilStripLength && isSigil(identifier[0]) {
		return identifier[1:]
	}
	return identifier
}

func isSigil(b byte) bool {
	for i := 0; i < len(sigils); i++ {
		if sigils[i] == b {
			return true
		}
	}
	return false
}
