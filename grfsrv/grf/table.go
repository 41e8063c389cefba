package grf

import (
	"bytes"
	"encoding/binary"
)

// rawEntry is one file-table record before name decoding.
type rawEntry struct {
	name        []byte
	compSize    uint32
	compAligned uint32
	realSize    uint32
	flags       byte
	offset      uint64
}

const (
	// flagFile marks addressable file entries; everything else is a
	// directory or placeholder record.
	flagFile = 0x01
	// flagMixCrypt and flagHeaderCrypt mark the legacy DES variants.
	flagMixCrypt    = 0x02
	flagHeaderCrypt = 0x04
)

// tableParse is the outcome of walking the inflated table under one offset
// width. inspected counts addressable file entries; parseErrors counts
// walks cut short by malformed metadata; outOfRange counts entries whose
// body cannot possibly live inside the archive.
type tableParse struct {
	entries     []rawEntry
	offsetWidth int
	inspected   int
	dirs        int
	parseErrors int
	outOfRange  int
}

// walkTable parses up to count entries from the inflated table buffer using
// the given offset width (4 for 0x200, 4 or 8 for 0x300).
func walkTable(table []byte, count int64, offsetWidth int, archiveLen int64) tableParse {
	res := tableParse{offsetWidth: offsetWidth}
	pos := 0
	fixed := 13 + offsetWidth // compSize + compAligned + realSize + flags + offset

	for int64(len(res.entries))+int64(res.skipped()) < count && pos < len(table) {
		nul := bytes.IndexByte(table[pos:], 0)
		if nul < 0 {
			res.parseErrors++
			break
		}
		name := table[pos : pos+nul]
		pos += nul + 1
		if pos+fixed > len(table) {
			res.parseErrors++
			break
		}
		e := rawEntry{
			name:        name,
			compSize:    binary.LittleEndian.Uint32(table[pos:]),
			compAligned: binary.LittleEndian.Uint32(table[pos+4:]),
			realSize:    binary.LittleEndian.Uint32(table[pos+8:]),
			flags:       table[pos+12],
		}
		if offsetWidth == 8 {
			e.offset = binary.LittleEndian.Uint64(table[pos+13:])
		} else {
			e.offset = uint64(binary.LittleEndian.Uint32(table[pos+13:]))
		}
		pos += fixed

		if e.flags&flagFile == 0 {
			res.dirs++
			continue
		}
		res.inspected++
		if int64(e.offset) < 0 || int64(e.offset) >= archiveLen ||
			int64(e.offset)+int64(e.compAligned) > archiveLen {
			res.outOfRange++
		}
		res.entries = append(res.entries, e)
	}
	return res
}

// dirs tracks skipped non-file records so the walk still honors the
// declared entry count.
func (p tableParse) skipped() int { return p.dirs }

// betterThan ranks two candidate layouts for a 0x300 table: more inspected
// entries wins, then fewer parse errors, then fewer out-of-range offsets.
func (p tableParse) betterThan(o tableParse) bool {
	if p.inspected != o.inspected {
		return p.inspected > o.inspected
	}
	if p.parseErrors != o.parseErrors {
		return p.parseErrors < o.parseErrors
	}
	return p.outOfRange < o.outOfRange
}

// chooseLayout parses the table under every offset width the version
// allows and picks the most plausible result.
func chooseLayout(table []byte, count int64, version uint32, archiveLen int64) tableParse {
	if version == VersionV2 {
		return walkTable(table, count, 4, archiveLen)
	}
	p32 := walkTable(table, count, 4, archiveLen)
	p64 := walkTable(table, count, 8, archiveLen)
	if p64.betterThan(p32) {
		return p64
	}
	return p32
}
