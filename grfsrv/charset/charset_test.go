package charset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const koreanUI = "유저인터페이스"

// toMojibake reproduces the historical damage: encode under CP949, then
// reinterpret each byte as a Latin-1 code point.
func toMojibake(t *testing.T, s string) string {
	t.Helper()
	b, err := Encode(s, CP949)
	require.NoError(t, err)
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"UTF8Strict", testDecodeUTF8Strict},
		{"CP949Roundtrip", testDecodeCP949Roundtrip},
		{"EUCKRAliasesCP949", testDecodeEUCKRAlias},
		{"Latin1", testDecodeLatin1},
		{"UnsupportedEncoding", testDecodeUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testDecodeUTF8Strict(t *testing.T) {
	s, err := Decode([]byte("data/texture.bmp"), UTF8)
	require.NoError(t, err)
	assert.Equal(t, "data/texture.bmp", s)

	s, err = Decode([]byte(koreanUI), UTF8)
	require.NoError(t, err)
	assert.Equal(t, koreanUI, s)

	_, err = Decode([]byte{0xC0, 0xAF}, UTF8)
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func testDecodeCP949Roundtrip(t *testing.T) {
	b, err := Encode(koreanUI, CP949)
	require.NoError(t, err)
	assert.NotEqual(t, []byte(koreanUI), b, "CP949 bytes differ from UTF-8")

	back, err := Decode(b, CP949)
	require.NoError(t, err)
	assert.Equal(t, koreanUI, back)
}

func testDecodeEUCKRAlias(t *testing.T) {
	b, err := Encode(koreanUI, EUCKR)
	require.NoError(t, err)
	cp, err := Encode(koreanUI, CP949)
	require.NoError(t, err)
	assert.Equal(t, cp, b, "euc-kr is widened to cp949")
}

func testDecodeLatin1(t *testing.T) {
	s, err := Decode([]byte{0xC0, 0xAF, 0x2F, 0x74}, Latin1)
	require.NoError(t, err)
	assert.Equal(t, "À¯/t", s)
}

func testDecodeUnsupported(t *testing.T) {
	_, err := Decode([]byte("x"), Encoding("shift-jis"))
	require.ErrorIs(t, err, ErrDecode)
}

func TestIsUTF8(t *testing.T) {
	assert.True(t, IsUTF8([]byte("plain/ascii.txt")))
	assert.True(t, IsUTF8([]byte(koreanUI)))
	assert.False(t, IsUTF8([]byte{0xC0, 0xAF}))
	assert.True(t, IsUTF8(nil))
}

func TestCounts(t *testing.T) {
	assert.Equal(t, 2, CountReplacement("a�b�"))
	assert.Equal(t, 0, CountReplacement(koreanUI))

	assert.Equal(t, 1, CountC1("a\u0081b"))
	assert.Equal(t, 0, CountC1("a\u00a0b"), "A0 is above the C1 range")

	assert.Equal(t, 7, CountHangul(koreanUI))
	assert.Equal(t, 0, CountHangul("data/texture.bmp"))
}

func TestMojibake(t *testing.T) {
	moji := toMojibake(t, koreanUI+"/t.bmp")

	assert.True(t, IsMojibake(moji))
	assert.False(t, IsMojibake(koreanUI+"/t.bmp"), "real Hangul is not mojibake")
	assert.False(t, IsMojibake("data/texture.bmp"))
	assert.False(t, IsMojibake(""))
	assert.False(t, IsMojibake("café"), "a lone accented letter is a real Latin name")

	fixed := FixMojibake(moji)
	assert.Equal(t, koreanUI+"/t.bmp", fixed)

	// Not reinterpretable: contains code points above 0xFF.
	assert.Equal(t, koreanUI, FixMojibake(koreanUI))
}

func TestFixMojibakeRoundtrip(t *testing.T) {
	// Invariant: fix_mojibake(to_mojibake(s)) == s for Hangul-bearing s.
	for _, s := range []string{
		koreanUI,
		"데이터/몬스터.spr",
		"유저인터페이스/btn_ok.bmp",
	} {
		assert.Equal(t, s, FixMojibake(toMojibake(t, s)), "s=%q", s)
	}
}

func TestFixC1Prefix(t *testing.T) {
	// 0x81 0x41 is a CP949 extended sequence; read as code points it
	// leaves a C1 control in the name.
	broken := "\u0081A_extra.bmp"
	require.Equal(t, 1, CountC1(broken))

	fixed := FixC1Prefix(broken, CP949)
	assert.NotEqual(t, broken, fixed)
	assert.Equal(t, 0, CountC1(fixed))
	assert.GreaterOrEqual(t, CountHangul(fixed), 1)
	assert.True(t, strings.HasSuffix(fixed, "_extra.bmp"))

	// A clean segment is left alone.
	assert.Equal(t, "texture.bmp", FixC1Prefix("texture.bmp", CP949))

	// The repair must strictly decrease the C1 count to be kept.
	noC1 := "résumé.txt"
	assert.Equal(t, noC1, FixC1Prefix(noC1, CP949))
}

func TestRepair(t *testing.T) {
	moji := toMojibake(t, koreanUI) + "/t.bmp"
	assert.Equal(t, koreanUI+"/t.bmp", Repair(moji, CP949))

	// Per-segment C1 recovery leaves healthy segments untouched.
	mixed := "data/\u0081A.bmp"
	repaired := Repair(mixed, CP949)
	assert.True(t, strings.HasPrefix(repaired, "data/"))
	assert.Equal(t, 0, CountC1(repaired))

	assert.Equal(t, "data/texture.bmp", Repair("data/texture.bmp", CP949))
}

func TestRoundtripOK(t *testing.T) {
	assert.True(t, RoundtripOK(koreanUI, CP949))
	assert.True(t, RoundtripOK("data/texture.bmp", UTF8))
	assert.False(t, RoundtripOK("bad�name", CP949),
		"replacement characters never re-encode")
}

func TestDetector(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"AllASCII", testDetectorAllASCII},
		{"KoreanMajority", testDetectorKorean},
		{"BelowThreshold", testDetectorBelowThreshold},
		{"Empty", testDetectorEmpty},
		{"ScanLimit", testDetectorScanLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testDetectorAllASCII(t *testing.T) {
	d := NewDetector(0.01, 0)
	for i := 0; i < 50; i++ {
		d.Observe([]byte("data/file.bmp"))
	}
	assert.Equal(t, UTF8, d.Result())
}

func testDetectorKorean(t *testing.T) {
	d := NewDetector(0.01, 0)
	raw, err := Encode(koreanUI, CP949)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		d.Observe(raw)
	}
	assert.Equal(t, CP949, d.Result())
}

func testDetectorBelowThreshold(t *testing.T) {
	d := NewDetector(0.5, 0)
	raw, err := Encode(koreanUI, CP949)
	require.NoError(t, err)
	d.Observe(raw)
	for i := 0; i < 99; i++ {
		d.Observe([]byte("ascii.txt"))
	}
	assert.Equal(t, UTF8, d.Result(), "1% invalid is under a 50% threshold")
}

func testDetectorEmpty(t *testing.T) {
	d := NewDetector(0.01, 0)
	assert.Equal(t, Unknown, d.Result())
}

func testDetectorScanLimit(t *testing.T) {
	d := NewDetector(0.01, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, d.Observe([]byte("x")))
	}
	assert.False(t, d.Observe([]byte("x")), "limit reached")
	assert.Equal(t, 3, d.Inspected())
}
