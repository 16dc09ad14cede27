// Package mmap maps store files into memory for zero-copy lookups.
//
// # Usage
//
//	m, err := mmap.Open("countries.kvl")
//	if err != nil { ... }
//	defer m.Close()
//
//	_ = m.Advise(mmap.AccessRandom) // hash probes jump around the file
//	rec, err := m.Slice(off, n)      // zero-copy view, valid until Close
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (advice is a no-op)
//
// Mappings are always read-only.
//
// # Thread Safety
//
// A Mapping is safe for concurrent readers. Close is idempotent and guarded by
// an atomic flag, but callers must stop using slices obtained from Bytes or
// Slice before calling Close.
package mmap
