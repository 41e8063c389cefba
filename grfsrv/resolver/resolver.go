// Package resolver answers "give me the bytes for path P" across every
// opened archive: cache probe, optional disk mirror, unified index lookup,
// repair-map alternate retry, and finally an audited miss.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/raiken-mf/grfserve/grfsrv/cache"
	"github.com/raiken-mf/grfserve/grfsrv/grf"
	"github.com/raiken-mf/grfserve/grfsrv/index"
)

// ErrNotFound is the expected outcome for unknown paths. Extraction
// failures on known paths degrade to this error after logging.
var ErrNotFound = errors.New("resolver: not found")

// Resolver is the single concurrent entry point of the engine. Everything
// it references is immutable after boot except the cache and the missing
// log, which guard themselves.
type Resolver struct {
	archives []*grf.Archive
	idx      *index.UnifiedIndex
	lru      *cache.LRU
	repair   *index.RepairMap
	mirror   *Mirror
	missing  *MissingLog
	group    singleflight.Group
}

// New wires a resolver. repair and mirror may be nil; missing must not be.
func New(archives []*grf.Archive, idx *index.UnifiedIndex, lru *cache.LRU,
	repair *index.RepairMap, mirror *Mirror, missing *MissingLog) *Resolver {
	return &Resolver{
		archives: archives,
		idx:      idx,
		lru:      lru,
		repair:   repair,
		mirror:   mirror,
		missing:  missing,
	}
}

// Fetch returns the bytes for path or ErrNotFound. Concurrent fetches of
// the same path collapse into one extraction; the cache key is the
// lowercased request path with backslashes turned into forward slashes, so
// both slash directions share one cache entry.
func (r *Resolver) Fetch(ctx context.Context, path string) ([]byte, error) {
	key := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	if buf, ok := r.lru.Get(key); ok {
		return buf, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Concurrent misses for the same key collapse into one extraction.
	// A put racing a fetch that slipped past the probe is fine: the cache
	// is last-writer-wins and both writers hold identical bytes.
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.fetchSlow(path, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *Resolver) fetchSlow(path, key string) ([]byte, error) {
	if r.mirror != nil {
		if buf, ok := r.mirror.Read(path); ok {
			r.lru.Put(key, buf)
			return buf, nil
		}
	}

	tried := []string{path}
	res := r.idx.Resolve(path)
	if res.Status == index.NotFound && r.repair != nil {
		for _, alt := range r.repair.Alternates(path) {
			tried = append(tried, alt)
			if res = r.idx.Resolve(alt); res.Status != index.NotFound {
				break
			}
		}
	}
	if res.Status == index.NotFound {
		rec := r.missing.Record(path, index.Normalize(path), tried)
		slog.Debug("fetch miss", "path", path, "tried", len(tried), "record", rec.ID)
		return nil, ErrNotFound
	}

	// Ambiguous carries candidates for diagnostics; serving picks the
	// first, which is the earliest-priority insert.
	ref := res.Ref
	buf, err := r.archives[ref.ArchiveID].Get(ref.RawKey)
	if err != nil {
		slog.Warn("extraction failed",
			"path", path,
			"archive_id", ref.ArchiveID,
			"error", err)
		r.missing.Record(path, index.Normalize(path), tried)
		return nil, ErrNotFound
	}

	r.lru.Put(key, buf)
	if r.mirror != nil {
		if werr := r.mirror.Write(path, buf); werr != nil {
			slog.Warn("mirror write failed", "path", path, "error", werr)
		}
	}
	return buf, nil
}

// Stats bundles the numbers the stats endpoint reports.
type Stats struct {
	Cache   cache.Stats      `json:"cache"`
	Index   index.IndexStats `json:"index"`
	Missing uint64           `json:"missing"`
}

// Stats snapshots cache, index and miss counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Cache:   r.lru.Stats(),
		Index:   r.idx.Stats(),
		Missing: r.missing.Total(),
	}
}

// Missing exposes the retained miss records.
func (r *Resolver) Missing() []MissingRecord {
	return r.missing.Snapshot()
}
