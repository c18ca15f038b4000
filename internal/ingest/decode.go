package ingest

// decode.go turns raw file bytes into clean UTF-8 text for the CSV reader:
//
//   - a byte budget guards against oversized uploads
//   - a leading BOM is dropped
//   - the text is decoded from the source encoding; invalid bytes become U+FFFD
//   - NUL bytes are removed

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/csvcure/internal/core"
)

// Encoding names a source text encoding.
type Encoding string

const (
	EncodingAuto        Encoding = "auto"
	EncodingUTF8        Encoding = "utf-8"
	EncodingLatin1      Encoding = "latin-1"
	EncodingWindows1252 Encoding = "windows-1252"
)

// sniffSize is how much of the input auto detection looks at.
const sniffSize = 64 * 1024

// ParseEncoding resolves common spellings of the supported encodings.
// An empty name means EncodingAuto.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return EncodingAuto, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, nil
	case "windows-1252", "cp1252":
		return EncodingWindows1252, nil
	}
	return "", fmt.Errorf("unsupported encoding %q", name)
}

func (e Encoding) codec() encoding.Encoding {
	switch e {
	case EncodingLatin1:
		return charmap.ISO8859_1
	case EncodingWindows1252:
		return charmap.Windows1252
	default:
		return unicode.UTF8
	}
}

// Sniff picks UTF-8 when the start of the input is valid UTF-8 and latin-1
// otherwise.
func Sniff(prefix []byte) Encoding {
	prefix = prefix[:len(prefix)-incompleteTail(prefix)]
	if utf8.Valid(prefix) {
		return EncodingUTF8
	}
	return EncodingLatin1
}

// incompleteTail returns how many trailing bytes form the start of a
// multi-byte sequence cut off by the end of the buffer.
func incompleteTail(b []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < 0x80 {
			return 0
		}
		if c >= 0xC0 {
			need := 2
			switch {
			case c >= 0xF0:
				need = 4
			case c >= 0xE0:
				need = 3
			}
			if i < need {
				return i
			}
			return 0
		}
	}
	return 0
}

// limitReader fails with core.ErrFileTooLarge once more than max bytes
// have been read. max <= 0 disables the limit.
type limitReader struct {
	r    io.Reader
	max  int64
	read int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.max > 0 && l.read > l.max {
		return n, fmt.Errorf("%w: more than %d bytes", core.ErrFileTooLarge, l.max)
	}
	return n, err
}

// Decode wraps r so it yields clean UTF-8 text. It reports the encoding
// that was used, which differs from enc only for EncodingAuto.
func Decode(r io.Reader, enc Encoding, maxBytes int64) (io.Reader, Encoding, error) {
	br := bufio.NewReaderSize(&limitReader{r: r, max: maxBytes}, sniffSize)

	if enc == "" || enc == EncodingAuto {
		prefix, err := br.Peek(sniffSize)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, "", err
		}
		enc = Sniff(prefix)
	}

	// BOMOverride strips a UTF-8 BOM and otherwise falls back to enc.
	decoder := unicode.BOMOverride(enc.codec().NewDecoder())
	stripNUL := runes.Remove(runes.Predicate(func(r rune) bool { return r == 0 }))

	return transform.NewReader(br, transform.Chain(decoder, stripNUL)), enc, nil
}
