package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Content codecs recorded next to stored content.
const (
	CodecNone = "none"
	CodecZstd = "zstd"
)

// minCompressSize is the smallest content worth compressing.
const minCompressSize = 256

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

// compressContent returns the codec and the bytes to store. Content that
// is small or does not shrink is stored as is.
func compressContent(data []byte) (string, []byte) {
	if len(data) < minCompressSize {
		return CodecNone, data
	}
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return CodecNone, data
	}
	return CodecZstd, compressed
}

func decompressContent(codec string, data []byte) ([]byte, error) {
	switch codec {
	case CodecNone, "":
		return data, nil
	case CodecZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown content codec %q", codec)
	}
}
