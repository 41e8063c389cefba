// Package validate implements the deep encoding validator: it sweeps every
// decoded filename across a set of archives, classifies encoding damage,
// computes health metrics, and emits the repair table the index consumes at
// boot.
package validate

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/raiken-mf/grfserve/grfsrv/charset"
	"github.com/raiken-mf/grfserve/grfsrv/grf"
	"github.com/raiken-mf/grfserve/grfsrv/index"
)

// Exit codes of the validator surface.
const (
	ExitClean    = 0
	ExitWarnings = 1
	ExitFailures = 2
)

// Options tunes a validation run.
type Options struct {
	// ReadLimit caps how many entries are inspected per archive (0 = all).
	ReadLimit int
	// Examples is how many damaged names to retain per archive for the
	// console summary.
	Examples int
	// Encoding overrides per-archive auto-detection when non-empty.
	Encoding charset.Encoding
	// AutoDetectThreshold is passed through to the archive opener.
	AutoDetectThreshold float64
	// Workers bounds archive-level parallelism (0 = GOMAXPROCS).
	Workers int
}

// ArchiveReport classifies one archive's filenames.
type ArchiveReport struct {
	File             string  `json:"file"`
	LoadError        string  `json:"loadError,omitempty"`
	TotalFiles       int     `json:"totalFiles"`
	BadUfffd         int     `json:"badUfffd"`
	BadC1            int     `json:"badC1"`
	Mojibake         int     `json:"mojibake"`
	RoundtripRawFail int     `json:"roundtripRawFail"`
	Repairable       int     `json:"roundtripRepairable"`
	FinalFail        int     `json:"roundtripFinalFail"`
	finalFailClean   int     // final failures not explained by U+FFFD
	Mapped           int     `json:"mapped"`
	MojibakeFixed    int     `json:"mojibakeFixed"`
	C1Fixed          int     `json:"c1Fixed"`
	DetectedEncoding string  `json:"detectedEncoding"`
	Health           float64 `json:"health"`
	Examples         []string `json:"examples,omitempty"`

	paths map[string]string
}

// Summary aggregates over every archive in the run.
type Summary struct {
	Archives     int     `json:"archives"`
	LoadFailures int     `json:"loadFailures"`
	TotalFiles   int     `json:"totalFiles"`
	BadUfffd     int     `json:"badUfffd"`
	BadC1        int     `json:"badC1"`
	Mojibake     int     `json:"mojibake"`
	Repairable   int     `json:"roundtripRepairable"`
	FinalFail    int     `json:"roundtripFinalFail"`
	TotalMapped  int     `json:"totalMapped"`
	Health       float64 `json:"health"`
}

// Report is the full validation outcome.
type Report struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	Grfs        []ArchiveReport `json:"grfs"`
	Summary     Summary         `json:"summary"`
	ExitCode    int             `json:"exitCode"`
}

// Run validates every archive path. Per-entry and per-archive failures are
// accumulated, never fatal; the exit code carries the verdict.
func Run(ctx context.Context, paths []string, opts Options) (*Report, *index.RepairMap) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	reports := make([]ArchiveReport, len(paths))
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(workers)
	for i, path := range paths {
		p.Go(func() {
			rep := validateArchive(ctx, path, opts)
			mu.Lock()
			reports[i] = rep
			mu.Unlock()
		})
	}
	p.Wait()

	report := &Report{GeneratedAt: time.Now(), Grfs: reports}
	rm := &index.RepairMap{
		GeneratedAt: report.GeneratedAt,
		Paths:       map[string]string{},
	}

	finalFailClean := 0
	for _, rep := range reports {
		report.Summary.Archives++
		if rep.LoadError != "" {
			report.Summary.LoadFailures++
			continue
		}
		report.Summary.TotalFiles += rep.TotalFiles
		report.Summary.BadUfffd += rep.BadUfffd
		report.Summary.BadC1 += rep.BadC1
		report.Summary.Mojibake += rep.Mojibake
		report.Summary.Repairable += rep.Repairable
		report.Summary.FinalFail += rep.FinalFail
		report.Summary.TotalMapped += rep.Mapped
		finalFailClean += rep.finalFailClean

		rm.Grfs = append(rm.Grfs, index.RepairMapGrf{
			File:             rep.File,
			TotalFiles:       rep.TotalFiles,
			Mapped:           rep.Mapped,
			Mojibake:         rep.Mojibake,
			C1:               rep.BadC1,
			DetectedEncoding: rep.DetectedEncoding,
		})
		rm.Summary.TotalFiles += rep.TotalFiles
		rm.Summary.TotalMapped += rep.Mapped
		rm.Summary.MojibakeFixed += rep.MojibakeFixed
		rm.Summary.C1Fixed += rep.C1Fixed
		for broken, canonical := range rep.paths {
			rm.Paths[broken] = canonical
		}
	}
	report.Summary.Health = health(report.Summary.TotalFiles,
		report.Summary.BadUfffd, report.Summary.BadC1)

	switch {
	case report.Summary.LoadFailures > 0 || finalFailClean > 0:
		report.ExitCode = ExitFailures
	case report.Summary.Repairable > 0 || report.Summary.BadUfffd > 0 ||
		report.Summary.FinalFail > 0 || report.Summary.BadC1 > 0 ||
		report.Summary.Mojibake > 0:
		report.ExitCode = ExitWarnings
	default:
		report.ExitCode = ExitClean
	}
	return report, rm
}

func validateArchive(ctx context.Context, path string, opts Options) ArchiveReport {
	rep := ArchiveReport{File: path, paths: map[string]string{}}

	ar, src, err := grf.OpenFile(ctx, path, grf.Options{
		Encoding:            opts.Encoding,
		AutoDetectThreshold: opts.AutoDetectThreshold,
	})
	if err != nil {
		rep.LoadError = err.Error()
		slog.Warn("validation load failed", "archive", path, "error", err)
		return rep
	}
	defer src.Close()

	enc := roundtripEncoding(ar.Encoding())
	rep.DetectedEncoding = string(ar.Encoding())

	for e := range ar.Entries() {
		if opts.ReadLimit > 0 && rep.TotalFiles >= opts.ReadLimit {
			break
		}
		rep.TotalFiles++
		name := e.Name

		ufffd := charset.CountReplacement(name) > 0
		c1 := charset.CountC1(name) > 0
		moji := charset.IsMojibake(name)
		if ufffd {
			rep.BadUfffd++
		}
		if c1 {
			rep.BadC1++
		}
		if moji {
			rep.Mojibake++
		}
		if ufffd || c1 || moji {
			if len(rep.Examples) < opts.Examples {
				rep.Examples = append(rep.Examples, name)
			}
		}

		rawOK := charset.RoundtripOK(name, enc)
		if !rawOK {
			rep.RoundtripRawFail++
		}
		if rawOK && !moji && !c1 {
			continue
		}
		// Damaged one way or another: try the repair pipeline. A name
		// that roundtrips but looks like mojibake still gets mapped —
		// the archive stored the broken spelling faithfully.
		repaired := charset.Repair(name, enc)
		if repaired != name && charset.RoundtripOK(repaired, enc) {
			rep.Mapped++
			rep.paths[name] = repaired
			if !rawOK {
				rep.Repairable++
			}
			if moji {
				rep.MojibakeFixed++
			}
			if c1 {
				rep.C1Fixed++
			}
			continue
		}
		if !rawOK {
			rep.FinalFail++
			if !ufffd {
				rep.finalFailClean++
			}
		}
	}

	rep.Health = health(rep.TotalFiles, rep.BadUfffd, rep.BadC1)
	return rep
}

// roundtripEncoding maps the archive's detected encoding onto the table the
// roundtrip check uses. Anything Korean-ish rides on CP949; an archive with
// no inspectable names is checked as CP949 too, the dominant legacy case.
func roundtripEncoding(enc charset.Encoding) charset.Encoding {
	switch enc {
	case charset.UTF8:
		return charset.UTF8
	case charset.Latin1:
		return charset.Latin1
	default:
		return charset.CP949
	}
}

func health(total, ufffd, c1 int) float64 {
	if total == 0 {
		return 1
	}
	return float64(total-ufffd-c1) / float64(total)
}
