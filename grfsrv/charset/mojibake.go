package charset

import (
	"strings"
)

// IsMojibake reports whether s looks like CP949 bytes that were reinterpreted
// as Latin-1. Such strings contain no Hangul and no code point above U+00FF,
// but carry runs of accented Latin letters in U+00A0..U+00FF where the CP949
// lead/trail bytes landed.
func IsMojibake(s string) bool {
	if s == "" {
		return false
	}
	high := 0
	run := 0
	maxRun := 0
	for _, r := range s {
		if r > 0xFF || (r >= 0xAC00 && r <= 0xD7A3) {
			return false
		}
		if r >= 0xA0 && r <= 0xFF {
			high++
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 0
		}
	}
	// CP949 double-byte sequences read as Latin-1 produce adjacent high
	// code points; a lone accented letter is more likely a real Latin name.
	return high >= 2 && maxRun >= 2
}

// FixMojibake reinterprets the code points of s as raw bytes in 0x00..0xFF
// and decodes those bytes as CP949. The original string is returned when s
// contains code points above 0xFF or when the CP949 decode fails.
func FixMojibake(s string) string {
	raw := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		raw = append(raw, byte(r))
	}
	fixed, err := Decode(raw, CP949)
	if err != nil || CountReplacement(fixed) > CountReplacement(s) {
		return s
	}
	return fixed
}

// FixC1Prefix re-decodes the leading run of single-byte code points of a path
// segment as CP949. The repair is kept only when it strictly lowers the C1
// count without introducing replacement characters; a segment whose C1-range
// code points are somehow legitimate is left alone.
func FixC1Prefix(segment string, enc Encoding) string {
	runes := []rune(segment)
	n := 0
	for n < len(runes) && runes[n] <= 0xFF {
		n++
	}
	if n == 0 {
		return segment
	}
	raw := make([]byte, n)
	for i := 0; i < n; i++ {
		raw[i] = byte(runes[i])
	}
	head, err := Decode(raw, CP949)
	if err != nil {
		return segment
	}
	fixed := head + string(runes[n:])
	if CountC1(fixed) >= CountC1(segment) {
		return segment
	}
	if CountReplacement(fixed) > CountReplacement(segment) {
		return segment
	}
	return fixed
}

// Repair applies the full filename repair pipeline: whole-path mojibake
// reinterpretation first, then per-segment C1-prefix recovery.
func Repair(filename string, enc Encoding) string {
	out := filename
	if IsMojibake(out) {
		out = FixMojibake(out)
	}
	if CountC1(out) == 0 {
		return out
	}
	segments := strings.Split(out, "/")
	for i, seg := range segments {
		if CountC1(seg) > 0 {
			segments[i] = FixC1Prefix(seg, enc)
		}
	}
	return strings.Join(segments, "/")
}
