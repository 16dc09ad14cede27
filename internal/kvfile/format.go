package kvfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	MagicNumber = 0x4B564C31 // "KVL1"
	Version     = 1

	// HeaderSize is the size of the fixed file header in bytes.
	HeaderSize = 64

	slotSize      = 16
	maxCodecName  = 15
	maxRecordHead = 2 * binary.MaxVarintLen64
	minCapacity   = 2
)

var (
	ErrInvalidMagic    = errors.New("invalid magic number")
	ErrInvalidVersion  = errors.New("unsupported version")
	ErrCorrupt         = errors.New("corrupt store file")
	ErrChecksum        = errors.New("checksum mismatch")
	ErrMapNotFound     = errors.New("map not found")
	ErrClosed          = errors.New("store file is closed")
	ErrUnknownCodec    = errors.New("unknown codec")
	ErrCodecNameLength = errors.New("codec name too long")
)

// FileHeader describes the layout of a store file.
type FileHeader struct {
	Magic           uint32
	Version         uint32
	MapCount        uint32
	Compression     CompressionType
	_               [3]byte // Padding
	DirectoryOffset uint64
	DirectorySize   uint64
	Checksum        uint32 // CRC32C of everything after the header
	Codec           string // up to 15 bytes, length-prefixed
}

// Encode serializes the header into HeaderSize bytes.
func (h *FileHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.MapCount)
	buf[12] = uint8(h.Compression)
	// Padding [13:16]
	binary.LittleEndian.PutUint64(buf[16:], h.DirectoryOffset)
	binary.LittleEndian.PutUint64(buf[24:], h.DirectorySize)
	binary.LittleEndian.PutUint32(buf[32:], h.Checksum)
	buf[36] = uint8(len(h.Codec))
	copy(buf[37:37+maxCodecName], h.Codec)
	// Reserved [52:64]
	return buf
}

// DecodeHeader parses and validates a header.
func DecodeHeader(buf []byte) (*FileHeader, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: file smaller than header", ErrCorrupt)
	}
	h := &FileHeader{}
	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	if h.Magic != MagicNumber {
		return nil, ErrInvalidMagic
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	if h.Version != Version {
		return nil, ErrInvalidVersion
	}
	h.MapCount = binary.LittleEndian.Uint32(buf[8:])
	h.Compression = CompressionType(buf[12])
	h.DirectoryOffset = binary.LittleEndian.Uint64(buf[16:])
	h.DirectorySize = binary.LittleEndian.Uint64(buf[24:])
	h.Checksum = binary.LittleEndian.Uint32(buf[32:])
	n := int(buf[36])
	if n > maxCodecName {
		return nil, fmt.Errorf("%w: codec name length %d", ErrCorrupt, n)
	}
	h.Codec = string(buf[37 : 37+n])
	return h, nil
}

// MapInfo locates one map inside a store file.
type MapInfo struct {
	Name        string
	Count       uint64
	TableOffset uint64
	Capacity    uint64
}

func encodeDirectory(maps []MapInfo) []byte {
	var buf []byte
	for _, m := range maps {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Name)))
		buf = append(buf, m.Name...)
		buf = binary.LittleEndian.AppendUint64(buf, m.Count)
		buf = binary.LittleEndian.AppendUint64(buf, m.TableOffset)
		buf = binary.LittleEndian.AppendUint64(buf, m.Capacity)
	}
	return buf
}

func decodeDirectory(buf []byte, count uint32) ([]MapInfo, error) {
	maps := make([]MapInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 2 {
			return nil, fmt.Errorf("%w: truncated directory", ErrCorrupt)
		}
		n := int(binary.LittleEndian.Uint16(buf))
		buf = buf[2:]
		if len(buf) < n+24 {
			return nil, fmt.Errorf("%w: truncated directory entry", ErrCorrupt)
		}
		m := MapInfo{Name: string(buf[:n])}
		buf = buf[n:]
		m.Count = binary.LittleEndian.Uint64(buf[0:])
		m.TableOffset = binary.LittleEndian.Uint64(buf[8:])
		m.Capacity = binary.LittleEndian.Uint64(buf[16:])
		buf = buf[24:]
		if m.Capacity == 0 || m.Capacity&(m.Capacity-1) != 0 || m.Count > m.Capacity {
			return nil, fmt.Errorf("%w: map %q has invalid capacity %d", ErrCorrupt, m.Name, m.Capacity)
		}
		maps = append(maps, m)
	}
	return maps, nil
}

// tableCapacity returns the smallest power of two >= 2*count.
func tableCapacity(count int) uint64 {
	c := uint64(minCapacity)
	for c < uint64(count)*2 {
		c <<= 1
	}
	return c
}
