package kvfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/hupe1980/kvlookup/codec"
	"github.com/hupe1980/kvlookup/internal/fs"
	"github.com/hupe1980/kvlookup/internal/hash"
	"github.com/hupe1980/kvlookup/internal/mmap"
)

// Mode selects how a Reader accesses the file.
type Mode int

const (
	// ModeMemoryMapped maps the whole file read-only.
	ModeMemoryMapped Mode = iota
	// ModeFileOnly issues positional reads for every lookup.
	ModeFileOnly
)

func (m Mode) String() string {
	switch m {
	case ModeMemoryMapped:
		return "memory-mapped"
	case ModeFileOnly:
		return "file-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Options configures Open.
type Options struct {
	Mode Mode
	// FS is used in ModeFileOnly. Defaults to fs.Default.
	FS fs.FileSystem
	// VerifyChecksum checks the body CRC32C before returning.
	VerifyChecksum bool
}

// source abstracts the backing medium.
type source interface {
	// read returns n bytes at off. Implementations may return a view that is
	// only valid until close.
	read(off, n int64) ([]byte, error)
	size() int64
	close() error
}

type mmapSource struct{ m *mmap.Mapping }

func (s mmapSource) read(off, n int64) ([]byte, error) { return s.m.Slice(off, n) }
func (s mmapSource) size() int64                       { return s.m.Size() }
func (s mmapSource) close() error                      { return s.m.Close() }

type fileSource struct {
	f  fs.File
	sz int64
}

func (s fileSource) read(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > s.sz {
		return nil, fmt.Errorf("%w: read [%d,%d) beyond file size %d", ErrCorrupt, off, off+n, s.sz)
	}
	buf := make([]byte, n)
	got, err := s.f.ReadAt(buf, off)
	if err != nil && (!errors.Is(err, io.EOF) || int64(got) < n) {
		return nil, err
	}
	return buf, nil
}

func (s fileSource) size() int64  { return s.sz }
func (s fileSource) close() error { return s.f.Close() }

// Reader provides lookups over a store file.
type Reader struct {
	src    source
	mode   Mode
	header *FileHeader
	codec  codec.Codec
	maps   []MapInfo
	closed atomic.Bool
}

// Open opens the store file at path.
func Open(path string, opts Options) (*Reader, error) {
	src, err := openSource(path, opts)
	if err != nil {
		return nil, err
	}

	r, err := newReader(src, opts)
	if err != nil {
		_ = src.close()
		return nil, err
	}
	return r, nil
}

func openSource(path string, opts Options) (source, error) {
	if opts.Mode == ModeMemoryMapped {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, err
		}
		if err := m.Advise(mmap.AccessRandom); err != nil {
			_ = m.Close()
			return nil, err
		}
		return mmapSource{m: m}, nil
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return fileSource{f: f, sz: fi.Size()}, nil
}

func newReader(src source, opts Options) (*Reader, error) {
	if src.size() < HeaderSize {
		return nil, fmt.Errorf("%w: file smaller than header", ErrCorrupt)
	}
	hb, err := src.read(0, HeaderSize)
	if err != nil {
		return nil, err
	}
	h, err := DecodeHeader(hb)
	if err != nil {
		return nil, err
	}

	c, ok := codec.ByName(h.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, h.Codec)
	}
	switch h.Compression {
	case CompressionNone, CompressionLZ4, CompressionZSTD:
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, h.Compression)
	}

	end := h.DirectoryOffset + h.DirectorySize
	if h.DirectoryOffset < HeaderSize || end < h.DirectoryOffset || end > uint64(src.size()) {
		return nil, fmt.Errorf("%w: directory out of bounds", ErrCorrupt)
	}

	if opts.VerifyChecksum {
		if err := verifyChecksum(src, h.Checksum); err != nil {
			return nil, err
		}
	}

	dir, err := src.read(int64(h.DirectoryOffset), int64(h.DirectorySize))
	if err != nil {
		return nil, err
	}
	maps, err := decodeDirectory(dir, h.MapCount)
	if err != nil {
		return nil, err
	}
	for _, m := range maps {
		tableEnd := m.TableOffset + m.Capacity*slotSize
		if m.TableOffset < HeaderSize || tableEnd > h.DirectoryOffset {
			return nil, fmt.Errorf("%w: table of map %q out of bounds", ErrCorrupt, m.Name)
		}
	}

	return &Reader{
		src:    src,
		mode:   opts.Mode,
		header: h,
		codec:  c,
		maps:   maps,
	}, nil
}

func verifyChecksum(src source, want uint32) error {
	var got uint32
	switch s := src.(type) {
	case mmapSource:
		body, err := s.read(HeaderSize, s.size()-HeaderSize)
		if err != nil {
			return err
		}
		got = hash.CRC32C(body)
	case fileSource:
		h := hash.NewCRC32C()
		if _, err := io.Copy(h, io.NewSectionReader(s.f, HeaderSize, s.sz-HeaderSize)); err != nil {
			return err
		}
		got = h.Sum32()
	}
	if got != want {
		return fmt.Errorf("%w: header %08x, body %08x", ErrChecksum, want, got)
	}
	return nil
}

// Header returns the decoded file header.
func (r *Reader) Header() FileHeader { return *r.header }

// Mode returns the access mode the reader was opened with.
func (r *Reader) Mode() Mode { return r.mode }

// Codec returns the value codec recorded in the header.
func (r *Reader) Codec() codec.Codec { return r.codec }

// Size returns the file size in bytes.
func (r *Reader) Size() int64 { return r.src.size() }

// Maps returns the directory entries in file order.
func (r *Reader) Maps() []MapInfo {
	out := make([]MapInfo, len(r.maps))
	copy(out, r.maps)
	return out
}

// Map returns the lookup view of a named map.
func (r *Reader) Map(name string) (*Map, error) {
	for _, m := range r.maps {
		if m.Name == name {
			return &Map{r: r, info: m}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrMapNotFound, name)
}

// Close releases the mapping or file. A second call returns ErrClosed.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return ErrClosed
	}
	return r.src.close()
}

// Map is one named key-value map of a store file.
type Map struct {
	r    *Reader
	info MapInfo
}

// Name returns the map name.
func (m *Map) Name() string { return m.info.Name }

// Len returns the number of keys.
func (m *Map) Len() int { return int(m.info.Count) }

// Get returns the encoded (decompressed) value stored under key.
// In memory-mapped mode an uncompressed value aliases the mapping and must
// not be retained past Close.
func (m *Map) Get(key string) ([]byte, bool, error) {
	if m.r.closed.Load() {
		return nil, false, ErrClosed
	}
	if m.info.Count == 0 {
		return nil, false, nil
	}

	h := hash.Key(key)
	mask := m.info.Capacity - 1
	idx := h & mask
	for probes := uint64(0); probes < m.info.Capacity; probes++ {
		slot, err := m.r.src.read(int64(m.info.TableOffset+idx*slotSize), slotSize)
		if err != nil {
			return nil, false, err
		}
		off := binary.LittleEndian.Uint64(slot[8:])
		if off == 0 {
			return nil, false, nil
		}
		if binary.LittleEndian.Uint64(slot) == h {
			k, v, err := m.r.record(off)
			if err != nil {
				return nil, false, err
			}
			if bytes.Equal(k, []byte(key)) {
				val, err := decompressValue(v, m.r.header.Compression)
				if err != nil {
					return nil, false, err
				}
				return val, true, nil
			}
		}
		idx = (idx + 1) & mask
	}
	return nil, false, nil
}

// Decode decodes an encoded value with the file's codec.
func (r *Reader) Decode(data []byte) (any, error) {
	var v any
	if err := r.codec.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *Reader) record(off uint64) (key, val []byte, err error) {
	size := uint64(r.src.size())
	if off < HeaderSize || off >= size {
		return nil, nil, fmt.Errorf("%w: record offset %d out of bounds", ErrCorrupt, off)
	}
	n := min(uint64(maxRecordHead), size-off)
	head, err := r.src.read(int64(off), int64(n))
	if err != nil {
		return nil, nil, err
	}
	kl, a := binary.Uvarint(head)
	if a <= 0 {
		return nil, nil, fmt.Errorf("%w: bad key length at %d", ErrCorrupt, off)
	}
	vl, b := binary.Uvarint(head[a:])
	if b <= 0 {
		return nil, nil, fmt.Errorf("%w: bad value length at %d", ErrCorrupt, off)
	}
	start := off + uint64(a+b)
	if kl > size || vl > size || start+kl+vl > size {
		return nil, nil, fmt.Errorf("%w: record at %d exceeds file", ErrCorrupt, off)
	}
	rec, err := r.src.read(int64(start), int64(kl+vl))
	if err != nil {
		return nil, nil, err
	}
	return rec[:kl], rec[kl:], nil
}
