package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrFormat marks input that cannot be decoded into survey rows.
var ErrFormat = errors.New("invalid input format")

func formatErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// table is a decoded sheet: trimmed header plus raw rows.
type table struct {
	name   string
	header []string
	rows   [][]string
}

// records returns each non-blank row as a header-keyed map with trimmed values.
func (t *table) records() []map[string]string {
	out := make([]map[string]string, 0, len(t.rows))
	for _, row := range t.rows {
		rec := make(map[string]string, len(t.header))
		blank := true
		for i, h := range t.header {
			if h == "" {
				continue
			}
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if v != "" {
				blank = false
			}
			rec[h] = v
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out
}

// cleanHeader trims every name and strips a byte-order mark or stray
// zero-width artifact from the first one.
func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, name := range h {
		if i == 0 {
			name = strings.TrimPrefix(name, "\u00ef\u00bb\u00bf")
			name = strings.TrimLeft(name, "\ufeff\u200b\ufffe")
		}
		out[i] = strings.TrimSpace(name)
	}
	return out
}

// sniffDelimiter picks the separator from the file name, then from the
// first line by counting candidate runes outside quotes.
func sniffDelimiter(name string, head []byte) rune {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".tsv") {
		return '\t'
	}
	line := head
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	counts := map[rune]int{}
	inQuote := false
	for _, c := range string(line) {
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == ',', c == ';', c == '\t', c == '|':
			counts[c]++
		}
	}
	best, bestN := ',', 0
	for _, c := range []rune{',', ';', '\t', '|'} {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return best
}

// readDelimited decodes delimited text into a table.
func readDelimited(name string, r io.Reader) (*table, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4096)
	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(name, head)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &table{name: name}, nil
		}
		return nil, formatErr("%s: read header: %v", name, err)
	}
	t := &table{name: name, header: cleanHeader(header)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, formatErr("%s: %v", name, err)
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// headerIndex maps lower-cased header names to their original spelling.
func headerIndex(header []string) map[string]string {
	idx := make(map[string]string, len(header))
	for _, h := range header {
		key := strings.ToLower(h)
		if _, dup := idx[key]; !dup && h != "" {
			idx[key] = h
		}
	}
	return idx
}
