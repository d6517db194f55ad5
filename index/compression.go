package index

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec applied to snapshot chunk payloads.
// Each chunk blob self-describes with a one-byte header, so mixed
// generations (e.g. after changing the option) decode fine.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// String returns the stable name persisted in snapshot documents.
func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compress frames data with a compression header byte.
func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		out := make([]byte, 1+len(data))
		out[0] = byte(CompressionNone)
		copy(out[1:], data)
		return out, nil

	case CompressionZstd:
		out := []byte{byte(CompressionZstd)}
		return zstdEncoder.EncodeAll(data, out), nil

	case CompressionLZ4:
		var buf bytes.Buffer
		buf.WriteByte(byte(CompressionLZ4))
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("index: lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("index: lz4 close: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("index: unknown compression %d", c)
	}
}

// decompress inspects the header byte and inflates the payload.
func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("index: empty chunk blob")
	}
	payload := data[1:]

	switch Compression(data[0]) {
	case CompressionNone:
		return payload, nil

	case CompressionZstd:
		return zstdDecoder.DecodeAll(payload, nil)

	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(payload))
		return io.ReadAll(r)

	default:
		return nil, fmt.Errorf("index: unknown compression header 0x%02x", data[0])
	}
}
