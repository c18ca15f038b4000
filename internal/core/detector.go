package core

import "strings"

// SpillDetector decides whether a cell's text shows the signature of a spill.
// offset is the byte position of the first signature occurrence.
type SpillDetector interface {
	Detect(text string) (offset int, ok bool)
}

// DetectorFunc adapts a plain function to SpillDetector.
type DetectorFunc func(text string) (int, bool)

// Detect calls f.
func (f DetectorFunc) Detect(text string) (int, bool) {
	return f(text)
}

// QuotedDelimiterDetector flags text where a quote character is immediately
// followed by the delimiter, e.g. `Acme Inc",Boston` for quote `"` and
// delimiter `,`. This is what an unescaped closing quote leaves behind.
type QuotedDelimiterDetector struct {
	Quote     string
	Delimiter string
}

// Detect implements SpillDetector.
func (d QuotedDelimiterDetector) Detect(text string) (int, bool) {
	marker := d.marker()
	if marker == "" {
		return 0, false
	}
	i := strings.Index(text, marker)
	if i < 0 {
		return 0, false
	}
	return i, true
}

// Count returns how many times the marker occurs in text.
func (d QuotedDelimiterDetector) Count(text string) int {
	marker := d.marker()
	if marker == "" {
		return 0
	}
	return strings.Count(text, marker)
}

func (d QuotedDelimiterDetector) marker() string {
	if d.Delimiter == "" {
		return ""
	}
	quote := d.Quote
	if quote == "" {
		quote = `"`
	}
	return quote + d.Delimiter
}

// SubstringDetector flags text containing a fixed marker.
type SubstringDetector string

// Detect implements SpillDetector.
func (s SubstringDetector) Detect(text string) (int, bool) {
	if s == "" {
		return 0, false
	}
	i := strings.Index(text, string(s))
	return i, i >= 0
}

// detectorFactory builds the detector used by AutoStretch for a delimiter.
type detectorFactory func(delimiter string) SpillDetector

func quotedDelimiterFactory(quote string) detectorFactory {
	return func(delimiter string) SpillDetector {
		return QuotedDelimiterDetector{Quote: quote, Delimiter: delimiter}
	}
}
