package grf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// maxInflateSize caps any single inflation. Declared sizes beyond this are
// either corruption or a decompression bomb.
const maxInflateSize = 512 << 20

// inflate decodes a zlib-wrapped DEFLATE blob into exactly want bytes.
// Anything else — zlib error, short stream, trailing data — is ErrInflate.
func inflate(blob []byte, want uint32) ([]byte, error) {
	if int64(want) > maxInflateSize {
		return nil, fmt.Errorf("%w: uncompressed size %d exceeds %d byte ceiling",
			ErrInflate, want, int64(maxInflateSize))
	}
	zr, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInflate, err)
	}
	defer zr.Close()

	out := make([]byte, want)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: wanted %d bytes: %v", ErrInflate, want, err)
	}
	// The stream must end where the declared size says it does.
	var extra [1]byte
	n, err := zr.Read(extra[:])
	if n != 0 {
		return nil, fmt.Errorf("%w: stream longer than declared size %d", ErrInflate, want)
	}
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: after %d bytes: %v", ErrInflate, want, err)
	}
	return out, nil
}
