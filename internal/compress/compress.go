// Package compress frames fragment payloads for storage.
//
// A frame is [codec uint8][raw length uint64][crc32c uint32][payload]. The
// checksum covers the uncompressed bytes. Payloads that compress to more than
// 90% of their size are stored raw.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/cubestore/internal/hash"
)

// Codec is a payload compression algorithm.
type Codec uint8

const (
	// None stores payloads raw.
	None Codec = iota
	// LZ4 uses LZ4 block compression.
	LZ4
	// Zstd uses Zstandard at the default level.
	Zstd
	// Snappy uses Snappy block compression.
	Snappy
)

const headerSize = 13

var (
	// ErrCorrupt is returned when a frame fails validation.
	ErrCorrupt = errors.New("compress: corrupt frame")
	// ErrUnknownCodec is returned for unsupported codec names or ids.
	ErrUnknownCodec = errors.New("compress: unknown codec")
)

// ParseCodec returns the codec with the given name. The empty string is None.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "snappy":
		return Snappy, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Snappy:
		return "snappy"
	default:
		return fmt.Sprintf("Codec(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Encode frames data using codec c.
func Encode(c Codec, data []byte) ([]byte, error) {
	var payload []byte
	switch c {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		payload = buf[:n]
	case Zstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		payload = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case Snappy:
		payload = snappy.Encode(nil, data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, c)
	}
	if c != None && (len(payload) == 0 || float64(len(payload)) > float64(len(data))*0.9) {
		c, payload = None, nil
	}
	if c == None {
		payload = data
	}

	out := make([]byte, headerSize+len(payload))
	out[0] = byte(c)
	binary.LittleEndian.PutUint64(out[1:], uint64(len(data)))
	binary.LittleEndian.PutUint32(out[9:], hash.CRC32C(data))
	copy(out[headerSize:], payload)
	return out, nil
}

// DecodedLen returns the raw length recorded in a frame header.
func DecodedLen(frame []byte) (int, error) {
	if len(frame) < headerSize {
		return 0, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	return int(binary.LittleEndian.Uint64(frame[1:])), nil
}

// Decode unpacks a frame into dst, which must hold exactly the raw length.
func Decode(dst, frame []byte) error {
	n, err := DecodedLen(frame)
	if err != nil {
		return err
	}
	if len(dst) != n {
		return fmt.Errorf("%w: frame holds %d bytes, buffer %d", ErrCorrupt, n, len(dst))
	}
	payload := frame[headerSize:]

	switch Codec(frame[0]) {
	case None:
		if len(payload) != n {
			return fmt.Errorf("%w: raw payload of %d bytes, want %d", ErrCorrupt, len(payload), n)
		}
		copy(dst, payload)
	case LZ4:
		got, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if got != n {
			return fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrCorrupt, got, n)
		}
	case Zstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return err
		}
		out, err := dec.DecodeAll(payload, dst[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if len(out) != n {
			return fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrCorrupt, len(out), n)
		}
		if n > 0 && &out[0] != &dst[0] {
			copy(dst, out)
		}
	case Snappy:
		out, err := snappy.Decode(dst, payload)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if len(out) != n {
			return fmt.Errorf("%w: snappy produced %d bytes, want %d", ErrCorrupt, len(out), n)
		}
		if n > 0 && &out[0] != &dst[0] {
			copy(dst, out)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCodec, frame[0])
	}

	if sum := binary.LittleEndian.Uint32(frame[9:]); hash.CRC32C(dst) != sum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return nil
}
