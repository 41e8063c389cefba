package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// RepairMap is the persisted side table produced by the deep validator:
// every broken (mojibake or C1-bearing) path keyed to its canonical Korean
// form, plus per-archive summary counts. Loaded at boot and merged into the
// unified index.
type RepairMap struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Grfs        []RepairMapGrf    `json:"grfs"`
	Paths       map[string]string `json:"paths"`
	Summary     RepairMapSummary  `json:"summary"`
}

// RepairMapGrf summarizes one archive's contribution.
type RepairMapGrf struct {
	File             string `json:"file"`
	TotalFiles       int    `json:"totalFiles"`
	Mapped           int    `json:"mapped"`
	Mojibake         int    `json:"mojibake"`
	C1               int    `json:"c1"`
	DetectedEncoding string `json:"detectedEncoding"`
}

// RepairMapSummary aggregates across archives.
type RepairMapSummary struct {
	TotalFiles    int `json:"totalFiles"`
	TotalMapped   int `json:"totalMapped"`
	MojibakeFixed int `json:"mojibakeFixed"`
	C1Fixed       int `json:"c1Fixed"`
}

// Canonical returns the canonical form for a broken path, or the broken
// form that maps to path when the reverse direction is asked for.
func (rm *RepairMap) Canonical(path string) (string, bool) {
	if rm == nil {
		return "", false
	}
	if c, ok := rm.Paths[path]; ok {
		return c, true
	}
	return "", false
}

// Alternates returns every alternate spelling of path the map knows about:
// the canonical form when path is broken, and every broken form whose
// canonical form is path.
func (rm *RepairMap) Alternates(path string) []string {
	if rm == nil {
		return nil
	}
	var out []string
	if c, ok := rm.Paths[path]; ok && c != path {
		out = append(out, c)
	}
	for broken, canonical := range rm.Paths {
		if canonical == path && broken != path {
			out = append(out, broken)
		}
	}
	return out
}

// LoadRepairMap reads a path-mapping document. A missing file is not an
// error; it just means no repairs have been generated yet.
func LoadRepairMap(path string) (*RepairMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rm RepairMap
	if err := json.Unmarshal(data, &rm); err != nil {
		return nil, fmt.Errorf("repair map %s: %w", path, err)
	}
	if rm.Paths == nil {
		rm.Paths = map[string]string{}
	}
	return &rm, nil
}

// Save writes the document with stable indentation.
func (rm *RepairMap) Save(path string) error {
	data, err := json.MarshalIndent(rm, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
