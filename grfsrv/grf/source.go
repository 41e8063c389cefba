package grf

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Source is the narrow capability an archive needs from its backing store:
// positioned reads and a total length. *os.File satisfies the read side via
// pread, so concurrent extractions never contend on a shared offset.
type Source interface {
	io.ReaderAt
	Size() int64
}

// FileSource is an archive source backed by an open file.
type FileSource struct {
	f    *os.File
	size int64
}

// OpenFileSource opens path for positioned reads.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileSource{f: f, size: info.Size()}, nil
}

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

// Size returns the file length in bytes.
func (s *FileSource) Size() int64 { return s.size }

// Close releases the underlying file handle.
func (s *FileSource) Close() error { return s.f.Close() }

// BytesSource serves an archive image held in memory. Used by tests and by
// callers that already mapped the file.
type BytesSource struct {
	r    *bytes.Reader
	size int64
}

// NewBytesSource wraps b as a Source.
func NewBytesSource(b []byte) *BytesSource {
	return &BytesSource{r: bytes.NewReader(b), size: int64(len(b))}
}

func (s *BytesSource) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

// Size returns the image length in bytes.
func (s *BytesSource) Size() int64 { return s.size }

// readExact reads exactly n bytes at off. A short read is a truncation
// error, never a silently shortened buffer.
func readExact(src Source, off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+int64(n) > src.Size() {
		return nil, fmt.Errorf("%w: need %d bytes at %d, archive is %d",
			ErrTruncated, n, off, src.Size())
	}
	buf := make([]byte, n)
	read, err := src.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if read != n {
		return nil, fmt.Errorf("%w: wanted %d bytes at %d, got %d",
			ErrTruncated, n, off, read)
	}
	return buf, nil
}
