package grf

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raiken-mf/grfserve/grfsrv/charset"
	"github.com/raiken-mf/grfserve/grfsrv/grf/grftest"
)

func openImage(t *testing.T, img []byte, opts Options) *Archive {
	t.Helper()
	ar, err := Open(context.Background(), NewBytesSource(img), "test.grf", opts)
	require.NoError(t, err)
	return ar
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"SingleEntry", testOpenSingleEntry},
		{"BadSignature", testOpenBadSignature},
		{"UnsupportedVersion", testOpenUnsupportedVersion},
		{"EncryptedHeader", testOpenEncryptedHeader},
		{"TruncatedHeader", testOpenTruncatedHeader},
		{"EmptyTable", testOpenEmptyTable},
		{"CorruptTable", testOpenCorruptTable},
		{"TableSizeCeiling", testOpenTableSizeCeiling},
		{"DirectoriesSkipped", testOpenDirectoriesSkipped},
		{"AllDirectoriesUnknownEncoding", testOpenAllDirectories},
		{"KoreanAutoDetect", testOpenKoreanAutoDetect},
		{"DeclaredCountOvershoot", testOpenDeclaredCountOvershoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testOpenSingleEntry(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte(`data\foo.txt`), Data: []byte("hello")},
	})
	ar := openImage(t, img, Options{})

	assert.Equal(t, uint32(VersionV2), ar.Version())
	assert.Equal(t, 1, ar.Len())
	assert.Equal(t, charset.UTF8, ar.Encoding())

	e, ok := ar.Entry(`data\foo.txt`)
	require.True(t, ok)
	assert.Equal(t, `data\foo.txt`, e.Name)
	assert.Equal(t, uint32(5), e.RealSize)
	assert.False(t, e.BadName())

	buf, err := ar.Get(`data\foo.txt`)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf)
}

func testOpenBadSignature(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("a.txt"), Data: []byte("x")},
	})
	copy(img, "Mister of Magic")
	_, err := Open(context.Background(), NewBytesSource(img), "bad.grf", Options{})
	require.ErrorIs(t, err, ErrBadHeader)
}

func testOpenUnsupportedVersion(t *testing.T) {
	img := grftest.Build(grftest.Spec{Version: 0x103}, []grftest.File{
		{Name: []byte("a.txt"), Data: []byte("x")},
	})
	_, err := Open(context.Background(), NewBytesSource(img), "old.grf", Options{})
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func testOpenEncryptedHeader(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("a.txt"), Data: []byte("x")},
	})
	img[20] = 0x42 // poke the encryption key field
	_, err := Open(context.Background(), NewBytesSource(img), "des.grf", Options{})
	require.ErrorIs(t, err, ErrUnsupportedEncryption)
}

func testOpenTruncatedHeader(t *testing.T) {
	_, err := Open(context.Background(), NewBytesSource([]byte("Master of")), "short.grf", Options{})
	require.ErrorIs(t, err, ErrBadHeader)
}

func testOpenEmptyTable(t *testing.T) {
	// Header only: the table header read runs off the end.
	img := grftest.Build(grftest.Spec{}, nil)
	img = img[:headerSize]
	_, err := Open(context.Background(), NewBytesSource(img), "empty.grf", Options{})
	require.ErrorIs(t, err, ErrTableParse)
}

func testOpenCorruptTable(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("a.txt"), Data: []byte("x")},
	})
	// Zero the last four bytes of the compressed table (its zlib checksum)
	// so inflation fails.
	tableStart := len(img) - 4
	for i := tableStart; i < len(img); i++ {
		img[i] = 0
	}
	_, err := Open(context.Background(), NewBytesSource(img), "corrupt.grf", Options{})
	require.ErrorIs(t, err, ErrTableInflate)
}

func testOpenTableSizeCeiling(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("a.txt"), Data: []byte("x")},
	})
	// Rewrite the declared uncompressed table size to 512 MiB + 1.
	// The table header sits right after the bodies.
	hdrOff := int64(binary.LittleEndian.Uint32(img[30:])) + headerSize
	binary.LittleEndian.PutUint32(img[hdrOff+4:], 512<<20+1)
	_, err := Open(context.Background(), NewBytesSource(img), "bomb.grf", Options{})
	require.ErrorIs(t, err, ErrTableInflate)
	assert.Contains(t, err.Error(), "ceiling")
}

func testOpenDirectoriesSkipped(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("data"), Dir: true},
		{Name: []byte("data/a.txt"), Data: []byte("aa")},
		{Name: []byte("data/b.txt"), Data: []byte("bb")},
	})
	ar := openImage(t, img, Options{})
	assert.Equal(t, 2, ar.Len())
	_, ok := ar.Entry("data")
	assert.False(t, ok, "directory records are not addressable")
}

func testOpenAllDirectories(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("data"), Dir: true},
		{Name: []byte("texture"), Dir: true},
	})
	ar := openImage(t, img, Options{})
	assert.Equal(t, 0, ar.Len())
	assert.Equal(t, charset.Unknown, ar.Encoding(),
		"nothing inspected means no encoding verdict")
}

func testOpenKoreanAutoDetect(t *testing.T) {
	korean := "유저인터페이스/t.bmp"
	raw, err := charset.Encode(korean, charset.CP949)
	require.NoError(t, err)

	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: raw, Data: []byte("BM")},
	})
	ar := openImage(t, img, Options{})

	assert.Equal(t, charset.CP949, ar.Encoding())
	e, ok := ar.Entry(string(raw))
	require.True(t, ok)
	assert.Equal(t, korean, e.Name)
	assert.False(t, e.BadName())
}

func testOpenDeclaredCountOvershoot(t *testing.T) {
	// A declared count larger than the table holds must stop at the
	// buffer end, not read past it.
	img := grftest.Build(grftest.Spec{ExtraCount: 5}, []grftest.File{
		{Name: []byte("a.txt"), Data: []byte("x")},
	})
	ar := openImage(t, img, Options{})
	assert.Equal(t, 1, ar.Len())
}

func TestGet(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"Missing", testGetMissing},
		{"EmptyEntry", testGetEmptyEntry},
		{"EncryptedEntry", testGetEncryptedEntry},
		{"CorruptBody", testGetCorruptBody},
		{"Concurrent", testGetConcurrent},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testGetMissing(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("a.txt"), Data: []byte("x")},
	})
	ar := openImage(t, img, Options{})
	_, err := ar.Get("nope.txt")
	require.ErrorIs(t, err, ErrMissingEntry)
}

func testGetEmptyEntry(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("zero.dat"), Data: nil},
	})
	ar := openImage(t, img, Options{})
	buf, err := ar.Get("zero.dat")
	require.NoError(t, err)
	assert.Empty(t, buf)
}

func testGetEncryptedEntry(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("sealed.dat"), Data: []byte("x"), Flags: flagFile | flagMixCrypt},
	})
	ar := openImage(t, img, Options{})
	_, err := ar.Get("sealed.dat")
	require.ErrorIs(t, err, ErrUnsupportedEncryption)
}

func testGetCorruptBody(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("a.dat"), Data: bytes.Repeat([]byte("payload"), 10)},
	})
	// The body starts right after the header; scramble it.
	for i := headerSize; i < headerSize+8; i++ {
		img[i] ^= 0xFF
	}
	ar := openImage(t, img, Options{})
	_, err := ar.Get("a.dat")
	require.ErrorIs(t, err, ErrInflate)
}

func testGetConcurrent(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte("a.dat"), Data: []byte("alpha")},
		{Name: []byte("b.dat"), Data: []byte("beta")},
	})
	ar := openImage(t, img, Options{})

	done := make(chan error, 20)
	for i := 0; i < 10; i++ {
		go func() {
			buf, err := ar.Get("a.dat")
			if err == nil && string(buf) != "alpha" {
				err = assert.AnError
			}
			done <- err
		}()
		go func() {
			buf, err := ar.Get("b.dat")
			if err == nil && string(buf) != "beta" {
				err = assert.AnError
			}
			done <- err
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}
}

func TestEntriesAndStats(t *testing.T) {
	img := grftest.Build(grftest.Spec{}, []grftest.File{
		{Name: []byte(`data\a.bmp`), Data: []byte("1")},
		{Name: []byte(`data\b.bmp`), Data: []byte("2")},
		{Name: []byte(`data\c.txt`), Data: []byte("3")},
		{Name: []byte("README"), Data: []byte("4")},
	})
	ar := openImage(t, img, Options{})

	// Restartable iteration: two full walks see the same entries.
	for round := 0; round < 2; round++ {
		var names []string
		for e := range ar.Entries() {
			names = append(names, e.Name)
		}
		assert.Len(t, names, 4, "round %d", round)
	}

	stats := ar.Stats()
	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, 0, stats.BadNames)
	assert.Equal(t, 2, stats.Extensions[".bmp"])
	assert.Equal(t, 1, stats.Extensions[".txt"])
	assert.Equal(t, 1, stats.Extensions["(none)"])
}

func TestInflate(t *testing.T) {
	payload := []byte("the quick brown fox")
	blob := grftest.Deflate(payload)

	out, err := inflate(blob, uint32(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	_, err = inflate(blob, uint32(len(payload))-1)
	require.ErrorIs(t, err, ErrInflate, "stream longer than declared size")

	_, err = inflate(blob, uint32(len(payload))+1)
	require.ErrorIs(t, err, ErrInflate, "stream shorter than declared size")

	_, err = inflate([]byte{0x00, 0x01}, 4)
	require.ErrorIs(t, err, ErrInflate, "not a zlib stream")

	_, err = inflate(blob, 512<<20+1)
	require.ErrorIs(t, err, ErrInflate)
}

func TestReadExact(t *testing.T) {
	src := NewBytesSource([]byte("0123456789"))

	b, err := readExact(src, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("234"), b)

	_, err = readExact(src, 8, 5)
	require.ErrorIs(t, err, ErrTruncated)

	_, err = readExact(src, -1, 2)
	require.ErrorIs(t, err, ErrTruncated)
}
