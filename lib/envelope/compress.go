// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names the body encoding inside an envelope. The string
// values appear on the wire.
type Compression string

const (
	CompressionNone Compression = "none"

	// CompressionZstd is zstd at the default level. Kubernetes API
	// responses are JSON and typically shrink 4-8x.
	CompressionZstd Compression = "zstd"

	// CompressionLZ4 is LZ4 block compression: lower ratio than zstd
	// but cheaper for controllers that decode on a hot path.
	CompressionLZ4 Compression = "lz4"
)

// ParseCompression accepts "none", "zstd", "lz4", or the empty string
// (treated as none).
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	case CompressionLZ4:
		return CompressionLZ4, nil
	default:
		return "", fmt.Errorf("unknown compression %q", name)
	}
}

// lz4MaxRatio bounds how far an LZ4 block can expand: a match length
// gains at most 255 bytes per input byte.
const lz4MaxRatio = 255

// errIncompressible means compressing would not make the body smaller;
// Encode falls back to CompressionNone.
var errIncompressible = errors.New("data is incompressible")

// Shared across goroutines; both are safe for concurrent use via
// EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("envelope: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("envelope: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock reports 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
}

func decompress(data []byte, compression Compression, size int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("body is %d bytes, envelope records %d", len(data), size)
		}
		return data, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, envelope records %d", len(result), size)
		}
		return result, nil
	case CompressionLZ4:
		if size > len(data)*lz4MaxRatio {
			return nil, fmt.Errorf("lz4 decompress: %d byte block cannot expand to %d", len(data), size)
		}
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, envelope records %d", read, size)
		}
		return destination, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
}
