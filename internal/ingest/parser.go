// internal/ingest/parser.go
package ingest

import (
	"bytes"
	"strings"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// delimiterCandidates are tried against the header line; the most frequent
// one wins.
var delimiterCandidates = []rune{',', ';', '\t'}

// DetectDelimiter counts candidate delimiters in the header line and returns
// the most frequent one. Comma wins ties (it is checked first).
func DetectDelimiter(headerLine string) rune {
	best := ','
	bestCount := -1
	for _, cand := range delimiterCandidates {
		count := strings.Count(headerLine, string(cand))
		if count > bestCount {
			best = cand
			bestCount = count
		}
	}
	return best
}

// ParseLine splits a single delimited line into fields. It tolerates embedded
// delimiters and doubled quotes inside quoted fields, and unbalanced quotes.
// Embedded newlines inside quotes are NOT supported: callers split on
// newlines before parsing.
func ParseLine(line string, delim rune) []string {
	fields := []string{}
	var b strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				// Escaped quote inside a quoted field.
				b.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case r == delim && !inQuotes:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	fields = append(fields, b.String())

	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// SplitLines normalizes line endings, strips a UTF-8 BOM and drops trailing
// empty lines.
func SplitLines(payload []byte) []string {
	payload = bytes.TrimPrefix(payload, byteOrderMark)
	text := strings.ReplaceAll(string(payload), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}

// padRow extends row to length with empty strings.
func padRow(row []string, length int) []string {
	for len(row) < length {
		row = append(row, "")
	}
	return row
}
