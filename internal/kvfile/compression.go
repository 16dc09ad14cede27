package kvfile

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType defines the per-value compression algorithm of a file.
type CompressionType uint8

const (
	// CompressionNone stores values as encoded.
	CompressionNone CompressionType = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 CompressionType = 1
	// CompressionZSTD uses ZSTD (better ratio for large values).
	CompressionZSTD CompressionType = 2
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (CompressionType, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

const (
	flagRaw        byte = 0
	flagCompressed byte = 1

	// lz4MaxExpansion bounds the output of an LZ4 block per input byte.
	lz4MaxExpansion = 255
)

// maxZstdValue caps the decoded size of one value so a corrupt frame header
// cannot force a huge allocation.
const maxZstdValue = 1 << 30

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxZstdValue))
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compressValue frames an encoded value as [flag][payload].
// Values that do not shrink by at least 10% are stored raw.
func compressValue(data []byte, ct CompressionType) []byte {
	var compressed []byte
	switch ct {
	case CompressionLZ4:
		compressed = compressLZ4(data)
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		putZstdEncoder(enc)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, 1+len(data))
		out[0] = flagRaw
		copy(out[1:], data)
		return out
	}

	out := make([]byte, 1+len(compressed))
	out[0] = flagCompressed
	copy(out[1:], compressed)
	return out
}

// compressLZ4 returns [uvarint rawLen][block], or nil if incompressible.
func compressLZ4(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	buf := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	h := binary.PutUvarint(buf, uint64(len(data)))

	n, err := lz4.CompressBlock(data, buf[h:], nil)
	if err != nil || n == 0 {
		return nil
	}
	return buf[:h+n]
}

// decompressValue undoes compressValue. Raw payloads are returned without copying.
func decompressValue(framed []byte, ct CompressionType) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("%w: empty value frame", ErrCorrupt)
	}
	payload := framed[1:]
	switch framed[0] {
	case flagRaw:
		return payload, nil
	case flagCompressed:
	default:
		return nil, fmt.Errorf("%w: unknown value flag %d", ErrCorrupt, framed[0])
	}

	switch ct {
	case CompressionLZ4:
		rawLen, h := binary.Uvarint(payload)
		if h <= 0 {
			return nil, fmt.Errorf("%w: bad lz4 length prefix", ErrCorrupt)
		}
		block := payload[h:]
		if rawLen > uint64(len(block))*lz4MaxExpansion {
			return nil, fmt.Errorf("%w: lz4 length %d exceeds block of %d bytes", ErrCorrupt, rawLen, len(block))
		}
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(block, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint64(n) != rawLen {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		out, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: compressed value in file with compression %s", ErrCorrupt, ct)
	}
}
