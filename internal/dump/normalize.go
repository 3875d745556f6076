// Package dump turns raw export files into the normalized text the
// extraction engine works on: decoded, comment-free and accent-folded.
package dump

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Encoding names accepted by Decode.
const (
	EncodingAuto   = "auto"
	EncodingLatin1 = "latin1"
	EncodingUTF8   = "utf8"
)

// blockComment matches a "/*" opener through the end of the line holding the
// next "*". Stray "*/" closers are removed separately.
var blockComment = regexp.MustCompile(`(?s)/\*.*?\*[^\r\n]*`)

// Decode converts file bytes to a string. Auto keeps valid UTF-8 as is and
// falls back to Latin-1, which is how the export tool writes dumps.
func Decode(data []byte, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingAuto:
		if utf8.Valid(data) {
			return string(data), nil
		}
		return decodeLatin1(data)
	case EncodingUTF8, "utf-8":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("input is not valid UTF-8")
		}
		return string(data), nil
	case EncodingLatin1, "iso-8859-1":
		return decodeLatin1(data)
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func decodeLatin1(data []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding latin1: %w", err)
	}
	return string(out), nil
}

// RemoveComments strips block comments. Line comments are kept because the
// dump's "DDL for" section markers live in them.
func RemoveComments(text string) string {
	text = blockComment.ReplaceAllString(text, "")
	return strings.ReplaceAll(text, "*/", "")
}

// RemoveLineComments strips "--" comments outside single-quoted literals.
// Package sources go through this so commented-out declarations do not
// become routine boundaries.
func RemoveLineComments(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return strings.Join(lines, "\n")
}

func stripLineComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\'':
			inQuote = !inQuote
		case '-':
			if !inQuote && i+1 < len(line) && line[i+1] == '-' {
				return strings.TrimRight(line[:i], " \t")
			}
		}
	}
	return line
}

// FoldAccents replaces accented letters with their base letter (ñ → n).
func FoldAccents(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// RemoveEmptyLines collapses runs of blank lines left behind by comment removal.
func RemoveEmptyLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Normalize prepares a schema dump for the block splitter.
func Normalize(data []byte, encoding string) (string, error) {
	text, err := Decode(data, encoding)
	if err != nil {
		return "", err
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return FoldAccents(RemoveComments(text)), nil
}

// NormalizePackage prepares a package source file for the routine segmenter.
func NormalizePackage(data []byte, encoding string) (string, error) {
	text, err := Normalize(data, encoding)
	if err != nil {
		return "", err
	}
	return RemoveLineComments(text), nil
}
