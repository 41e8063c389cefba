package grf

import (
	"encoding/binary"
	"fmt"
)

const (
	headerSize = 46
	grfMagic   = "Master of Magic"

	VersionV2 = 0x200
	VersionV3 = 0x300
)

// header is the fixed 46-byte preamble of a GRF archive, little-endian.
type header struct {
	TableOffset uint32
	Seed        uint32
	FileCount   uint32
	Version     uint32
}

// parseHeader validates the signature and version and rejects archives that
// declare the legacy DES encryption key.
func parseHeader(raw []byte) (header, error) {
	var h header
	if len(raw) < headerSize {
		return h, fmt.Errorf("%w: %d bytes, need %d", ErrBadHeader, len(raw), headerSize)
	}
	if string(raw[:len(grfMagic)]) != grfMagic || raw[15] != 0 {
		return h, fmt.Errorf("%w: bad signature % x", ErrBadHeader, raw[:16])
	}
	for _, b := range raw[16:30] {
		if b != 0 {
			return h, fmt.Errorf("%w: nonzero encryption key", ErrUnsupportedEncryption)
		}
	}
	h.TableOffset = binary.LittleEndian.Uint32(raw[30:])
	h.Seed = binary.LittleEndian.Uint32(raw[34:])
	h.FileCount = binary.LittleEndian.Uint32(raw[38:])
	h.Version = binary.LittleEndian.Uint32(raw[42:])
	if h.Version != VersionV2 && h.Version != VersionV3 {
		return h, fmt.Errorf("%w: 0x%x", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

// entryCount is the effective number of file-table entries. The format
// overcounts by seed + 7.
func (h header) entryCount() int64 {
	n := int64(h.FileCount) - int64(h.Seed) - 7
	if n < 0 {
		return 0
	}
	return n
}
