package kvfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hupe1980/kvlookup/codec"
	"github.com/hupe1980/kvlookup/internal/fs"
	"github.com/hupe1980/kvlookup/internal/hash"
)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCodec sets the value codec recorded in the header.
func WithCodec(c codec.Codec) WriterOption {
	return func(w *Writer) { w.codec = c }
}

// WithCompression sets the per-value compression.
func WithCompression(ct CompressionType) WriterOption {
	return func(w *Writer) { w.compression = ct }
}

// Writer builds a store file in memory. Adding a key twice to the same map
// keeps the last value.
type Writer struct {
	codec       codec.Codec
	compression CompressionType

	maps  map[string]*mapBuilder
	order []string
}

type mapBuilder struct {
	keys  []string
	vals  [][]byte
	index map[string]int
}

// NewWriter creates a new store writer.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		codec: codec.Default,
		maps:  make(map[string]*mapBuilder),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AddMap declares a map so it exists even if it stays empty.
func (w *Writer) AddMap(name string) error {
	_, err := w.builder(name)
	return err
}

// Add encodes value and stores it under key in the named map.
func (w *Writer) Add(mapName, key string, value any) error {
	data, err := w.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for key %q: %w", key, err)
	}
	return w.AddEncoded(mapName, key, data)
}

// AddEncoded stores an already encoded value.
func (w *Writer) AddEncoded(mapName, key string, data []byte) error {
	b, err := w.builder(mapName)
	if err != nil {
		return err
	}
	framed := compressValue(data, w.compression)
	if i, ok := b.index[key]; ok {
		b.vals[i] = framed
		return nil
	}
	b.index[key] = len(b.keys)
	b.keys = append(b.keys, key)
	b.vals = append(b.vals, framed)
	return nil
}

func (w *Writer) builder(name string) (*mapBuilder, error) {
	if b, ok := w.maps[name]; ok {
		return b, nil
	}
	if name == "" || len(name) > math.MaxUint16 {
		return nil, fmt.Errorf("invalid map name %q", name)
	}
	b := &mapBuilder{index: make(map[string]int)}
	w.maps[name] = b
	w.order = append(w.order, name)
	return b, nil
}

// Len returns the number of distinct keys in the named map.
func (w *Writer) Len(mapName string) int {
	if b, ok := w.maps[mapName]; ok {
		return len(b.keys)
	}
	return 0
}

// Bytes serializes the store.
func (w *Writer) Bytes() ([]byte, error) {
	if len(w.codec.Name()) > maxCodecName {
		return nil, ErrCodecNameLength
	}
	if len(w.order) == 0 {
		return nil, errors.New("store has no maps")
	}

	buf := make([]byte, HeaderSize)
	infos := make([]MapInfo, 0, len(w.order))

	for _, name := range w.order {
		b := w.maps[name]

		offsets := make([]uint64, len(b.keys))
		for i, key := range b.keys {
			offsets[i] = uint64(len(buf))
			buf = binary.AppendUvarint(buf, uint64(len(key)))
			buf = binary.AppendUvarint(buf, uint64(len(b.vals[i])))
			buf = append(buf, key...)
			buf = append(buf, b.vals[i]...)
		}

		capacity := tableCapacity(len(b.keys))
		table := make([]byte, capacity*slotSize)
		mask := capacity - 1
		for i, key := range b.keys {
			h := hash.Key(key)
			idx := h & mask
			for binary.LittleEndian.Uint64(table[idx*slotSize+8:]) != 0 {
				idx = (idx + 1) & mask
			}
			binary.LittleEndian.PutUint64(table[idx*slotSize:], h)
			binary.LittleEndian.PutUint64(table[idx*slotSize+8:], offsets[i])
		}

		infos = append(infos, MapInfo{
			Name:        name,
			Count:       uint64(len(b.keys)),
			TableOffset: uint64(len(buf)),
			Capacity:    capacity,
		})
		buf = append(buf, table...)
	}

	dirOffset := uint64(len(buf))
	dir := encodeDirectory(infos)
	buf = append(buf, dir...)

	h := FileHeader{
		Magic:           MagicNumber,
		Version:         Version,
		MapCount:        uint32(len(infos)),
		Compression:     w.compression,
		DirectoryOffset: dirOffset,
		DirectorySize:   uint64(len(dir)),
		Checksum:        hash.CRC32C(buf[HeaderSize:]),
		Codec:           w.codec.Name(),
	}
	copy(buf, h.Encode())
	return buf, nil
}

// Flush writes the serialized store to out.
func (w *Writer) Flush(out io.Writer) error {
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// WriteFile writes the store to path atomically.
func (w *Writer) WriteFile(fsys fs.FileSystem, path string) error {
	if fsys == nil {
		fsys = fs.Default
	}
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(fsys, path, data, os.FileMode(0o644))
}
