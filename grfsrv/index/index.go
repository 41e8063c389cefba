// Package index maintains the unified cross-archive path index: every entry
// of every archive keyed by its normalized path, with first-insert-wins
// collision semantics and a mojibake alias layer merged from the repair map.
package index

import (
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/armon/go-radix"

	"github.com/raiken-mf/grfserve/grfsrv/grf"
)

// EntryRef locates an archive entry from the index: the priority-ordered
// archive id and the raw key the archive stores the entry under. MappedFrom
// is set when the key was inserted through the repair map rather than parsed
// from a table.
type EntryRef struct {
	ArchiveID  int
	RawKey     string
	MappedFrom string
}

// Status classifies a Resolve outcome.
type Status int

const (
	NotFound Status = iota
	Found
	Ambiguous
)

// Resolution is the result of a lookup. Candidates is populated only for
// Ambiguous, which can arise solely from explicit multi-candidate
// augmentation (two repair-map aliases landing on the same normalized key
// with different targets). Ordinary archive collisions are masked by
// first-insert-wins.
type Resolution struct {
	Status     Status
	Ref        EntryRef
	Candidates []EntryRef
}

// slot is the value stored per normalized key. extra holds later
// conflicting aliases for the Ambiguous path.
type slot struct {
	ref   EntryRef
	extra []EntryRef
}

// IndexStats tracks index shape and lookup traffic.
type IndexStats struct {
	Archives   int    `json:"archives"`
	Entries    int    `json:"entries"`
	Keys       int    `json:"keys"`
	Collisions uint64 `json:"collisions"`
	Aliases    int    `json:"aliases"`
	Flagged    uint64 `json:"flagged"`
	Lookups    uint64 `json:"lookups"`
}

// UnifiedIndex is the cross-archive map of normalized path to entry
// reference. It is built sequentially at boot and read-only afterwards; the
// RWMutex exists for the construction phase and for the stats counters.
type UnifiedIndex struct {
	tree    *radix.Tree      // normalized key -> *slot
	direct  map[string]*slot // exact-match fast path alongside the tree
	bitmaps *EntryBitmaps

	originals  []string // unique canonical decoded names, insert order
	seen       map[string]struct{}
	archives   int
	entries    int
	aliases    int
	collisions uint64
	lookups    atomic.Uint64

	mu sync.RWMutex
}

// New creates an empty unified index.
func New() *UnifiedIndex {
	return &UnifiedIndex{
		tree:    radix.New(),
		direct:  make(map[string]*slot),
		bitmaps: NewEntryBitmaps(),
		seen:    make(map[string]struct{}),
	}
}

// Ingest adds every entry of ar under the given archive id. Earlier calls
// win collisions, so callers must ingest archives in manifest order.
func (ix *UnifiedIndex) Ingest(archiveID int, ar *grf.Archive) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.archives++
	for e := range ar.Entries() {
		id := uint32(ix.entries)
		ix.entries++
		ref := EntryRef{ArchiveID: archiveID, RawKey: string(e.RawName)}
		if e.BadName() {
			ix.bitmaps.AddFlagged(id)
		}
		if _, dup := ix.seen[e.Name]; !dup {
			ix.seen[e.Name] = struct{}{}
			ix.originals = append(ix.originals, e.Name)
		}

		inserted := ix.insert(Normalize(e.Name), ref)
		ix.insert(BackslashKey(e.Name), ref)
		if !inserted {
			ix.collisions++
			ix.bitmaps.AddCollided(id)
		}
	}
	slog.Debug("archive ingested",
		"archive_id", archiveID,
		"entries", ar.Len(),
		"index_keys", len(ix.direct),
		"collisions", ix.collisions)
}

// insert stores ref under key unless the key is already taken. Reports
// whether the insert won.
func (ix *UnifiedIndex) insert(key string, ref EntryRef) bool {
	if _, taken := ix.direct[key]; taken {
		return false
	}
	s := &slot{ref: ref}
	ix.direct[key] = s
	ix.tree.Insert(key, s)
	return true
}

// MergeRepairMap threads the mojibake/C1 aliases into the index: for every
// broken -> canonical pair whose canonical form resolves, the broken form is
// indexed to the same entry. A broken form whose normalized key is already
// taken by a different entry becomes an extra candidate on that slot, which
// is what makes Resolve able to answer Ambiguous.
func (ix *UnifiedIndex) MergeRepairMap(rm *RepairMap) int {
	if rm == nil {
		return 0
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	merged := 0
	for broken, canonical := range rm.Paths {
		target, ok := ix.direct[Normalize(canonical)]
		if !ok {
			continue
		}
		ref := target.ref
		ref.MappedFrom = broken
		key := Normalize(broken)
		if existing, taken := ix.direct[key]; taken {
			if existing.ref.sansMapping() != ref.sansMapping() {
				existing.extra = append(existing.extra, ref)
			}
			continue
		}
		s := &slot{ref: ref}
		ix.direct[key] = s
		ix.tree.Insert(key, s)
		ix.insertAlias(BackslashKey(broken), ref)
		ix.aliases++
		merged++
	}
	slog.Debug("repair map merged", "aliases", merged, "pairs", len(rm.Paths))
	return merged
}

func (ix *UnifiedIndex) insertAlias(key string, ref EntryRef) {
	if _, taken := ix.direct[key]; taken {
		return
	}
	s := &slot{ref: ref}
	ix.direct[key] = s
	ix.tree.Insert(key, s)
}

func (r EntryRef) sansMapping() EntryRef {
	r.MappedFrom = ""
	return r
}

// Resolve answers where the bytes for path live. The normalized form is
// consulted first, then the lowercase-backslash form, so keys that survive
// only under their backslash alias stay reachable regardless of which slash
// direction the request uses.
func (ix *UnifiedIndex) Resolve(path string) Resolution {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ix.lookups.Add(1)

	s, ok := ix.direct[Normalize(path)]
	if !ok {
		s, ok = ix.direct[BackslashKey(path)]
	}
	if !ok {
		return Resolution{Status: NotFound}
	}
	if len(s.extra) > 0 {
		cands := append([]EntryRef{s.ref}, s.extra...)
		return Resolution{Status: Ambiguous, Ref: s.ref, Candidates: cands}
	}
	return Resolution{Status: Found, Ref: s.ref}
}

// Paths returns the unique canonical decoded names across all archives in
// a stable sorted order.
func (ix *UnifiedIndex) Paths() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]string, len(ix.originals))
	copy(out, ix.originals)
	sort.Strings(out)
	return out
}

// Search returns every canonical name matching re.
func (ix *UnifiedIndex) Search(re *regexp.Regexp) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []string
	for _, p := range ix.originals {
		if re.MatchString(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// WalkPrefix visits every normalized key beginning with prefix; the radix
// tree makes this proportional to the result set, not the index size.
func (ix *UnifiedIndex) WalkPrefix(prefix string, fn func(key string, ref EntryRef) bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ix.tree.WalkPrefix(Normalize(prefix), func(key string, v interface{}) bool {
		return fn(key, v.(*slot).ref)
	})
}

// Stats returns a snapshot of index shape and traffic.
func (ix *UnifiedIndex) Stats() IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return IndexStats{
		Archives:   ix.archives,
		Entries:    ix.entries,
		Keys:       len(ix.direct),
		Collisions: ix.collisions,
		Aliases:    ix.aliases,
		Flagged:    ix.bitmaps.Flagged.GetCardinality(),
		Lookups:    ix.lookups.Load(),
	}
}
