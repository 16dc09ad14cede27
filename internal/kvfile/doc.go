// Package kvfile implements the immutable on-disk format of lookup stores.
//
// A store file holds one or more named maps from string keys to encoded
// values. Each map is an open-addressing hash table (xxhash64, linear probing)
// pointing at length-prefixed records. The file is written once by [Writer]
// and then only read.
//
// # Layout
//
//	┌──────────────────────────────────────────────────────────────┐
//	│ Header (64 bytes)                                            │
//	│   magic "KVL1" | version | mapCount | compression            │
//	│   directoryOffset | directorySize | checksum | codec name    │
//	├──────────────────────────────────────────────────────────────┤
//	│ Map 0: records [uvarint keyLen][uvarint valLen][key][value]  │
//	│        table   capacity × {hash u64, recordOffset u64}       │
//	│ Map 1: ...                                                   │
//	├──────────────────────────────────────────────────────────────┤
//	│ Directory: per map [u16 nameLen][name][count][table][cap]    │
//	└──────────────────────────────────────────────────────────────┘
//
// All integers are little endian. The checksum is the CRC32C of everything
// after the header. A table slot with recordOffset 0 is empty; records always
// start after the header so 0 is never a valid offset.
//
// Values are encoded with the codec named in the header and stored as
// [flag u8][payload], where flag 1 marks a payload compressed with the file's
// compression algorithm.
//
// # Reading
//
// [Open] serves lookups either from a read-only memory mapping (zero-copy) or
// through positional reads on the open file. Results are identical in both
// modes; a [Reader] is safe for concurrent lookups.
package kvfile
