package grf

import (
	"context"
	"encoding/binary"
	"fmt"
	"iter"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/raiken-mf/grfserve/grfsrv/charset"
)

// loadTimeout is a crash safety net around the whole open path. A healthy
// archive parses in milliseconds; anything that takes this long is stuck on
// bad media or pathological corruption.
const loadTimeout = 10 * time.Second

// Entry is one addressable file inside an archive. Immutable after parse.
type Entry struct {
	RawName     []byte
	Name        string
	CompSize    uint32
	CompAligned uint32
	RealSize    uint32
	Flags       byte
	Offset      uint64
}

// BadName reports whether the decoded name carries replacement characters,
// meaning the stored bytes were not valid under the detected encoding.
func (e Entry) BadName() bool {
	return charset.CountReplacement(e.Name) > 0
}

// Archive is one opened GRF container. Immutable after Open; safe for
// concurrent Get calls.
type Archive struct {
	src  Source
	path string

	version     uint32
	tableOffset uint32
	seed        uint32
	declared    uint32
	encoding    charset.Encoding
	offsetWidth int

	entries  []Entry
	byRawKey map[string]int

	badNames    int
	parseErrors int
	outOfRange  int
}

// Options tunes archive opening.
type Options struct {
	// Encoding overrides auto-detection when set to something other
	// than Auto.
	Encoding charset.Encoding
	// AutoDetectThreshold is the invalid-UTF-8 fraction above which the
	// table is treated as CP949. Zero means the default 1%.
	AutoDetectThreshold float64
	// ScanLimit caps how many names the detector inspects (0 = all).
	ScanLimit int
}

// Open parses the archive header and file table from src. The source is not
// closed on failure; it belongs to the caller.
func Open(ctx context.Context, src Source, name string, opts Options) (*Archive, error) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	type result struct {
		ar  *Archive
		err error
	}
	done := make(chan result, 1)
	go func() {
		ar, err := open(src, name, opts)
		done <- result{ar, err}
	}()
	select {
	case r := <-done:
		return r.ar, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrLoadTimeout, name)
		}
		return nil, ctx.Err()
	}
}

// OpenFile opens the archive at p.
func OpenFile(ctx context.Context, p string, opts Options) (*Archive, *FileSource, error) {
	src, err := OpenFileSource(p)
	if err != nil {
		return nil, nil, err
	}
	ar, err := Open(ctx, src, path.Base(p), opts)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	return ar, src, nil
}

func open(src Source, name string, opts Options) (*Archive, error) {
	raw, err := readExact(src, 0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	h, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	tableHdr, err := readExact(src, int64(h.TableOffset)+headerSize, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: table header: %v", ErrTableParse, err)
	}
	compSize := binary.LittleEndian.Uint32(tableHdr[0:])
	realSize := binary.LittleEndian.Uint32(tableHdr[4:])

	blob, err := readExact(src, int64(h.TableOffset)+headerSize+8, int(compSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTableInflate, err)
	}
	table, err := inflate(blob, realSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTableInflate, err)
	}

	parsed := chooseLayout(table, h.entryCount(), h.Version, src.Size())

	enc := opts.Encoding
	if enc == "" || enc == charset.Auto {
		det := charset.NewDetector(opts.AutoDetectThreshold, opts.ScanLimit)
		for _, e := range parsed.entries {
			if !det.Observe(e.name) {
				break
			}
		}
		enc = det.Result()
	}

	ar := &Archive{
		src:         src,
		path:        name,
		version:     h.Version,
		tableOffset: h.TableOffset,
		seed:        h.Seed,
		declared:    h.FileCount,
		encoding:    enc,
		offsetWidth: parsed.offsetWidth,
		entries:     make([]Entry, 0, len(parsed.entries)),
		byRawKey:    make(map[string]int, len(parsed.entries)),
		parseErrors: parsed.parseErrors,
		outOfRange:  parsed.outOfRange,
	}

	decodeAs := enc
	if decodeAs == charset.Unknown {
		decodeAs = charset.Latin1
	}
	for _, re := range parsed.entries {
		decoded, derr := charset.Decode(re.name, decodeAs)
		if derr != nil {
			// Strict UTF-8 archives can still hold the odd broken
			// name; keep it visible rather than dropping the entry.
			decoded, _ = charset.Decode(re.name, charset.Latin1)
		}
		e := Entry{
			RawName:     re.name,
			Name:        decoded,
			CompSize:    re.compSize,
			CompAligned: re.compAligned,
			RealSize:    re.realSize,
			Flags:       re.flags,
			Offset:      re.offset,
		}
		if e.BadName() {
			ar.badNames++
		}
		ar.byRawKey[string(re.name)] = len(ar.entries)
		ar.entries = append(ar.entries, e)
	}

	slog.Debug("archive opened",
		"archive", name,
		"version", fmt.Sprintf("0x%x", h.Version),
		"entries", len(ar.entries),
		"offset_width", parsed.offsetWidth,
		"encoding", enc,
		"bad_names", ar.badNames,
		"parse_errors", parsed.parseErrors)
	return ar, nil
}

// Path returns the archive's display name.
func (a *Archive) Path() string { return a.path }

// Version returns the parsed format version (0x200 or 0x300).
func (a *Archive) Version() uint32 { return a.version }

// Encoding returns the detected or overridden filename encoding.
func (a *Archive) Encoding() charset.Encoding { return a.encoding }

// Len returns the number of addressable entries.
func (a *Archive) Len() int { return len(a.entries) }

// Entries yields every addressable entry in table order. The sequence is
// restartable; ranging twice walks the table twice.
func (a *Archive) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range a.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Entry looks up an entry by its raw (undecoded) key.
func (a *Archive) Entry(rawKey string) (Entry, bool) {
	i, ok := a.byRawKey[rawKey]
	if !ok {
		return Entry{}, false
	}
	return a.entries[i], true
}

// Get extracts and inflates the entry stored under rawKey.
func (a *Archive) Get(rawKey string) ([]byte, error) {
	i, ok := a.byRawKey[rawKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingEntry, rawKey, a.path)
	}
	e := a.entries[i]
	if e.Flags&(flagMixCrypt|flagHeaderCrypt) != 0 {
		return nil, fmt.Errorf("%w: entry %q", ErrUnsupportedEncryption, e.Name)
	}
	if e.RealSize == 0 {
		return []byte{}, nil
	}
	blob, err := readExact(a.src, int64(e.Offset)+headerSize, int(e.CompAligned))
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q: %v", ErrInflate, e.Name, err)
	}
	out, err := inflate(blob, e.RealSize)
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", e.Name, err)
	}
	return out, nil
}

// Stats summarizes the archive for diagnostics.
type Stats struct {
	Path        string           `json:"path"`
	Version     uint32           `json:"version"`
	Entries     int              `json:"entries"`
	BadNames    int              `json:"badNames"`
	ParseErrors int              `json:"parseErrors"`
	OutOfRange  int              `json:"outOfRange"`
	Encoding    charset.Encoding `json:"encoding"`
	Extensions  map[string]int   `json:"extensions"`
}

// Stats walks the entry list and aggregates per-extension counts.
func (a *Archive) Stats() Stats {
	s := Stats{
		Path:        a.path,
		Version:     a.version,
		Entries:     len(a.entries),
		BadNames:    a.badNames,
		ParseErrors: a.parseErrors,
		OutOfRange:  a.outOfRange,
		Encoding:    a.encoding,
		Extensions:  make(map[string]int),
	}
	for _, e := range a.entries {
		ext := strings.ToLower(path.Ext(strings.ReplaceAll(e.Name, "\\", "/")))
		if ext == "" {
			ext = "(none)"
		}
		s.Extensions[ext]++
	}
	return s
}
