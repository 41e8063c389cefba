// Package service is the boot container: it reads the manifest, opens every
// archive in priority order, builds the unified index, merges the repair
// map, and wires the resolver the transport layer talks to.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"

	internal "github.com/raiken-mf/grfserve/grfsrv"
	"github.com/raiken-mf/grfserve/grfsrv/cache"
	"github.com/raiken-mf/grfserve/grfsrv/charset"
	"github.com/raiken-mf/grfserve/grfsrv/config"
	"github.com/raiken-mf/grfserve/grfsrv/grf"
	"github.com/raiken-mf/grfserve/grfsrv/index"
	"github.com/raiken-mf/grfserve/grfsrv/resolver"
)

// ErrNoArchives means every manifest entry failed to load; the service
// cannot start with nothing to serve.
var ErrNoArchives = errors.New("service: no usable archives")

// missNotifyCooldown throttles external miss notifications.
const missNotifyCooldown = 30 * time.Second

// Service owns every boot-time singleton. Immutable after New; Fetch is the
// only concurrent entry point.
type Service struct {
	cfg      *config.Config
	archives []*grf.Archive
	sources  []*grf.FileSource
	idx      *index.UnifiedIndex
	lru      *cache.LRU
	res      *resolver.Resolver
}

// New boots the engine from cfg. Per-archive failures are logged and
// skipped; boot fails only when nothing loads at all.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	handler := assert.NewAssertHandler()
	handler.Assert(ctx, cfg != nil, "service requires a config")

	names, err := config.ParseManifest(filepath.Join(cfg.DataDir, cfg.Manifest))
	if err != nil {
		return nil, err
	}

	svc := &Service{cfg: cfg, idx: index.New()}

	// Archives open and ingest sequentially: manifest order is priority
	// order, and the index's first-insert-wins rule depends on it.
	for _, name := range names {
		path := filepath.Join(cfg.DataDir, name)
		ar, src, err := grf.OpenFile(ctx, path, grf.Options{
			Encoding:            charset.Auto,
			AutoDetectThreshold: cfg.AutoDetectThreshold,
			ScanLimit:           cfg.ScanLimit,
		})
		if err != nil {
			slog.Warn("skipping archive", "archive", name, "error", err)
			continue
		}
		id := len(svc.archives)
		svc.archives = append(svc.archives, ar)
		svc.sources = append(svc.sources, src)
		svc.idx.Ingest(id, ar)
		slog.Info("archive loaded",
			"archive", name,
			"entries", ar.Len(),
			"encoding", ar.Encoding())
	}
	if len(svc.archives) == 0 {
		return nil, fmt.Errorf("%w: %d manifest entries", ErrNoArchives, len(names))
	}

	rm, err := index.LoadRepairMap(filepath.Join(cfg.DataDir, internal.DefaultRepairMapName))
	if err != nil {
		slog.Warn("repair map unreadable, continuing without", "error", err)
		rm = nil
	}
	if rm != nil {
		merged := svc.idx.MergeRepairMap(rm)
		slog.Info("repair map loaded", "aliases", merged)
	}

	svc.lru = cache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxBytes())

	var mirror *resolver.Mirror
	if cfg.Extract.Enabled {
		mirror = resolver.NewMirror(filepath.Join(cfg.DataDir, cfg.Extract.Dir))
	}
	missing := resolver.NewMissingLog(func(rec resolver.MissingRecord) {
		slog.Info("missing path reported", "path", rec.Path, "record", rec.ID)
	}, missNotifyCooldown)

	svc.res = resolver.New(svc.archives, svc.idx, svc.lru, rm, mirror, missing)
	handler.Assert(ctx, svc.res != nil, "resolver must be wired before serving")
	return svc, nil
}

// Fetch returns the bytes for path or resolver.ErrNotFound.
func (s *Service) Fetch(ctx context.Context, path string) ([]byte, error) {
	return s.res.Fetch(ctx, path)
}

// List returns the unique canonical paths across every archive.
func (s *Service) List() []string {
	return s.idx.Paths()
}

// Search returns canonical paths matching the expression.
func (s *Service) Search(expr string) ([]string, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return s.idx.Search(re), nil
}

// Stats bundles cache, index and missing counters.
func (s *Service) Stats() resolver.Stats {
	return s.res.Stats()
}

// Missing exposes the retained not-found records.
func (s *Service) Missing() []resolver.MissingRecord {
	return s.res.Missing()
}

// Archives returns per-archive stats snapshots.
func (s *Service) Archives() []grf.Stats {
	out := make([]grf.Stats, len(s.archives))
	for i, ar := range s.archives {
		out[i] = ar.Stats()
	}
	return out
}

// Close releases every archive handle.
func (s *Service) Close() error {
	var first error
	for _, src := range s.sources {
		if err := src.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
