// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional reads, writes and sync
//   - [FileSystem]: the filesystem operations store files need
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDONLY, 0)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".kvl", fs.Fault{FailAfterReads: 2, FailAfterBytes: -1})
//	// inject ffs into the store under test
//
// This package does not take context.Context parameters. Local file
// operations are not interruptible at the syscall level; slow remote reads go
// through blobstore.Blob, which does.
package fs
