// Package grftest builds synthetic GRF archive images for tests.
package grftest

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"
)

// File describes one entry to pack. Flags defaults to 0x01 (regular file)
// when left zero and Dir is false.
type File struct {
	Name  []byte // raw name bytes as stored in the table
	Data  []byte
	Flags byte
	Dir   bool // emit a non-file record (flags 0x00)
}

// Spec shapes the produced archive.
type Spec struct {
	Version     uint32 // defaults to 0x200
	Seed        uint32
	OffsetWidth int // 4 or 8; defaults to 4 (8 only meaningful for 0x300)
	// ExtraCount inflates the declared file count beyond seed+7+len(files).
	ExtraCount uint32
}

// Build assembles a complete archive image.
func Build(spec Spec, files []File) []byte {
	version := spec.Version
	if version == 0 {
		version = 0x200
	}
	width := spec.OffsetWidth
	if width == 0 {
		width = 4
	}

	var bodies bytes.Buffer
	type packed struct {
		f        File
		comp     []byte
		offset   uint64
		realSize uint32
	}
	packs := make([]packed, 0, len(files))
	for _, f := range files {
		p := packed{f: f, offset: uint64(bodies.Len()), realSize: uint32(len(f.Data))}
		if !f.Dir {
			p.comp = deflate(f.Data)
			bodies.Write(p.comp)
		}
		packs = append(packs, p)
	}

	var table bytes.Buffer
	for _, p := range packs {
		table.Write(p.f.Name)
		table.WriteByte(0)
		flags := p.f.Flags
		if flags == 0 && !p.f.Dir {
			flags = 0x01
		}
		writeU32(&table, uint32(len(p.comp)))
		writeU32(&table, uint32(len(p.comp)))
		writeU32(&table, p.realSize)
		table.WriteByte(flags)
		if width == 8 {
			var off [8]byte
			binary.LittleEndian.PutUint64(off[:], p.offset)
			table.Write(off[:])
		} else {
			writeU32(&table, uint32(p.offset))
		}
	}
	tableComp := deflate(table.Bytes())

	var out bytes.Buffer
	out.WriteString("Master of Magic")
	out.WriteByte(0)
	out.Write(make([]byte, 14)) // zero encryption key
	writeU32(&out, uint32(bodies.Len()))
	writeU32(&out, spec.Seed)
	writeU32(&out, uint32(len(files))+spec.Seed+7+spec.ExtraCount)
	writeU32(&out, version)
	out.Write(bodies.Bytes())
	writeU32(&out, uint32(len(tableComp)))
	writeU32(&out, uint32(table.Len()))
	out.Write(tableComp)
	return out.Bytes()
}

// Deflate zlib-compresses b; exported for tests that hand-craft tables.
func Deflate(b []byte) []byte { return deflate(b) }

func deflate(b []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(b)
	zw.Close()
	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
