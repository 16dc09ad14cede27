package hash

import "github.com/cespare/xxhash/v2"

// Key hashes a lookup key for hash-table addressing.
func Key(key string) uint64 {
	return xxhash.Sum64String(key)
}

// KeyBytes is Key for a byte slice.
func KeyBytes(key []byte) uint64 {
	return xxhash.Sum64(key)
}
