package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompression_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"pi":"01ARZ3NDEKTSV4RRFFQ69G5FAV","tip":"bxyz"}`), 200)

	for _, comp := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(comp.String(), func(t *testing.T) {
			framed, err := compress(comp, payload)
			require.NoError(t, err)
			require.Equal(t, byte(comp), framed[0], "header byte self-describes the codec")

			got, err := decompress(framed)
			require.NoError(t, err)
			require.Equal(t, payload, got)

			if comp != CompressionNone {
				assert.Less(t, len(framed), len(payload), "repetitive payload should shrink")
			}
		})
	}
}

func TestCompression_MixedGenerationsDecode(t *testing.T) {
	// A reader never consults configuration to decode: the header byte
	// is authoritative, so chunks written under different settings
	// coexist.
	payload := []byte("entry data")

	for _, writer := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		framed, err := compress(writer, payload)
		require.NoError(t, err)

		got, err := decompress(framed)
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}

func TestCompression_Invalid(t *testing.T) {
	_, err := decompress(nil)
	require.Error(t, err)

	_, err = decompress([]byte{0xff, 0x01, 0x02})
	require.Error(t, err)

	_, err = compress(Compression(9), []byte("x"))
	require.Error(t, err)
}

func TestCompression_String(t *testing.T) {
	assert.Equal(t, "none", CompressionNone.String())
	assert.Equal(t, "zstd", CompressionZstd.String())
	assert.Equal(t, "lz4", CompressionLZ4.String())
}
