// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package parse

import (
	"bufio"
	"io"
	"strings"
)

// FixedWidthField names one column of a fixed-width ASCII layout by its byte
// offsets (half-open, 0-based), as documented in the source's record layout
// manual.
type FixedWidthField struct {
	Name  string
	Start int
	End   int
}

// FixedWidthLayout describes one record layout.
type FixedWidthLayout struct {
	Fields []FixedWidthField
}

// minLength returns the line length required to fill every field.
func (l FixedWidthLayout) minLength() int {
	max := 0
	for _, f := range l.Fields {
		if f.End > max {
			max = f.End
		}
	}
	return max
}

// FixedWidthReader streams records from a fixed-width file. Lines shorter
// than the layout are skipped and counted instead of aborting the source.
type FixedWidthReader struct {
	scanner    *bufio.Scanner
	layout     FixedWidthLayout
	minLen     int
	ShortLines int
}

// NewFixedWidthReader creates a reader for the given layout.
func NewFixedWidthReader(r io.Reader, layout FixedWidthLayout) *FixedWidthReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &FixedWidthReader{
		scanner: scanner,
		layout:  layout,
		minLen:  layout.minLength(),
	}
}

// Read returns the next record as a field-name → trimmed-value map, or io.EOF
// after the last one.
func (r *FixedWidthReader) Read() (map[string]string, error) {
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < r.minLen {
			r.ShortLines++
			continue
		}
		record := make(map[string]string, len(r.layout.Fields))
		for _, field := range r.layout.Fields {
			record[field.Name] = strings.TrimSpace(line[field.Start:field.End])
		}
		return record, nil
	}
	err := r.scanner.Err()
	if err != nil {
		return nil, err
	}
	return nil, io.EOF
}
