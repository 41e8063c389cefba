package grf

import "errors"

// Error kinds produced while opening and reading archives. Per-archive
// errors reject the archive without affecting others; ErrMissingEntry and
// ErrInflate are per-request and degrade to not-found at the resolver.
var (
	ErrBadHeader             = errors.New("grf: bad header")
	ErrUnsupportedVersion    = errors.New("grf: unsupported version")
	ErrUnsupportedEncryption = errors.New("grf: encrypted archives are not supported")
	ErrTableInflate          = errors.New("grf: file table inflate failed")
	ErrTableParse            = errors.New("grf: file table parse failed")
	ErrInflate               = errors.New("grf: inflate failed")
	ErrMissingEntry          = errors.New("grf: no such entry")
	ErrTruncated             = errors.New("grf: short read")
	ErrLoadTimeout           = errors.New("grf: archive load timed out")
)
