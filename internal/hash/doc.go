// Package hash provides the checksum and key-hash functions used by store files.
//
// # CRC32-Castagnoli (CRC32C)
//
// Store bodies are protected by CRC32C, which is hardware accelerated on x86
// (SSE4.2) and ARM (CRC extension):
//
//	checksum := hash.CRC32C(body)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
//
// # Key hashing
//
// Hash-table slots are addressed with xxhash64 of the raw key bytes:
//
//	slot := hash.Key(key) & (capacity - 1)
//
// The function must never change once files are written with it.
package hash
