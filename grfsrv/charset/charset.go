// Package charset decodes the byte-string filenames found in legacy game
// archives. Korean names are stored as CP949 (the Windows superset of
// EUC-KR); archives written by other tools carry UTF-8 or Latin-1 names, and
// a long history of bad conversions leaves names mis-decoded as Latin-1
// "mojibake" or carrying stray C1 control code points.
package charset

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
)

// Encoding identifies a supported byte-string encoding.
type Encoding string

const (
	UTF8    Encoding = "utf-8"
	CP949   Encoding = "cp949"
	EUCKR   Encoding = "euc-kr"
	Latin1  Encoding = "latin1"
	Auto    Encoding = "auto"
	Unknown Encoding = "unknown"
)

var (
	ErrInvalidUTF8 = errors.New("invalid utf-8 sequence")
	ErrDecode      = errors.New("decode failed")
	ErrEncode      = errors.New("encode failed")
)

// canonical maps encoding aliases onto the table actually used for
// conversion. EUC-KR is widened to CP949: every valid EUC-KR sequence is
// also valid CP949, and real archives labeled euc-kr routinely contain
// CP949-only extensions.
func canonical(enc Encoding) Encoding {
	switch enc {
	case EUCKR, Auto:
		return CP949
	default:
		return enc
	}
}

// Decode converts raw name bytes into a string under the given encoding.
// UTF-8 is strict: any ill-formed sequence is an error rather than a
// replacement character. CP949 decoding substitutes U+FFFD for invalid
// sequences; callers inspect the result with CountReplacement.
func Decode(b []byte, enc Encoding) (string, error) {
	switch canonical(enc) {
	case UTF8:
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%w: % x", ErrInvalidUTF8, b)
		}
		return string(b), nil
	case CP949:
		s, err := korean.EUCKR.NewDecoder().String(string(b))
		if err != nil {
			return "", fmt.Errorf("%w: cp949: %v", ErrDecode, err)
		}
		return s, nil
	case Latin1:
		s, err := charmap.ISO8859_1.NewDecoder().String(string(b))
		if err != nil {
			return "", fmt.Errorf("%w: latin1: %v", ErrDecode, err)
		}
		return s, nil
	default:
		return "", fmt.Errorf("%w: unsupported encoding %q", ErrDecode, enc)
	}
}

// Encode is the inverse of Decode. It fails when the string contains runes
// the target encoding cannot represent, which is what RoundtripOK relies on.
func Encode(s string, enc Encoding) ([]byte, error) {
	switch canonical(enc) {
	case UTF8:
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidUTF8, s)
		}
		return []byte(s), nil
	case CP949:
		out, err := korean.EUCKR.NewEncoder().String(s)
		if err != nil {
			return nil, fmt.Errorf("%w: cp949: %v", ErrEncode, err)
		}
		return []byte(out), nil
	case Latin1:
		out, err := charmap.ISO8859_1.NewEncoder().String(s)
		if err != nil {
			return nil, fmt.Errorf("%w: latin1: %v", ErrEncode, err)
		}
		return []byte(out), nil
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrEncode, enc)
	}
}

// IsUTF8 reports whether b is well-formed UTF-8. Pure ASCII short-circuits
// without running the full validator.
func IsUTF8(b []byte) bool {
	ascii := true
	for _, c := range b {
		if c >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return true
	}
	return utf8.Valid(b)
}

// CountReplacement counts U+FFFD replacement characters in s.
func CountReplacement(s string) int {
	return strings.Count(s, string(utf8.RuneError))
}

// CountC1 counts code points in the C1 control range U+0080..U+009F.
// These never appear in legitimate filenames; they are the residue of a
// CP949 lead byte that survived a partial conversion.
func CountC1(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x80 && r <= 0x9F {
			n++
		}
	}
	return n
}

// CountHangul counts code points in the Hangul syllable block
// U+AC00..U+D7A3.
func CountHangul(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0xAC00 && r <= 0xD7A3 {
			n++
		}
	}
	return n
}

// RoundtripOK reports whether s survives an encode/decode cycle under enc
// unchanged. Names that fail the roundtrip cannot be looked up again by the
// bytes the archive actually stores.
func RoundtripOK(s string, enc Encoding) bool {
	b, err := Encode(s, enc)
	if err != nil {
		return false
	}
	back, err := Decode(b, enc)
	if err != nil {
		return false
	}
	return back == s
}
