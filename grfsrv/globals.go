package internal

import (
	"os"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config lookup paths and log fields
	DefaultAppName         = "grfserve"
	DefaultManifestName    = "DATA.INI"
	DefaultRepairMapName   = "path-mapping.json"
	DefaultListenAddr      = ":8000"
	DefaultCacheMaxEntries = 100
	DefaultCacheMaxMemMB   = 256

	// DefaultAutoDetectThreshold is the fraction of invalid-UTF-8 names
	// above which an archive is treated as CP949
	DefaultAutoDetectThreshold = 0.01
)

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Str("app", DefaultAppName).Logger()
}
