// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

// Package parse contains the streaming record parsers used by source
// adapters. All of them read one record at a time so that even multi-GB dumps
// ingest with bounded memory.
package parse

import (
	"bufio"
	"io"
)

// PipeReader streams records from a pipe-delimited file. Quoted fields may
// contain embedded delimiters and newlines; a doubled quote inside a quoted
// field is an escaped quote. Stray quotes inside unquoted fields are taken
// literally, which is why encoding/csv cannot be used for this dialect.
type PipeReader struct {
	reader    *bufio.Reader
	Delimiter byte
	line      int
}

// NewPipeReader creates a PipeReader over the given stream.
func NewPipeReader(r io.Reader) *PipeReader {
	return &PipeReader{
		// large buffer: single records in the RRC dump exceed the bufio default
		reader:    bufio.NewReaderSize(r, 1<<20),
		Delimiter: '|',
	}
}

// Line returns the line number of the most recently read record (1-based).
func (p *PipeReader) Line() int {
	return p.line
}

// Read returns the next record, or io.EOF after the last one. Empty lines are
// skipped.
func (p *PipeReader) Read() ([]string, error) {
	for {
		record, err := p.readRecord()
		if err != nil {
			return nil, err
		}
		if len(record) == 1 && record[0] == "" {
			continue // blank line
		}
		return record, nil
	}
}

func (p *PipeReader) readRecord() ([]string, error) {
	var (
		fields   []string
		field    []byte
		inQuotes bool
		started  bool
	)

	for {
		c, err := p.reader.ReadByte()
		if err == io.EOF {
			if !started && len(fields) == 0 {
				return nil, io.EOF
			}
			fields = append(fields, string(field))
			return fields, nil
		}
		if err != nil {
			return nil, err
		}
		started = true

		switch {
		case inQuotes:
			if c == '"' {
				next, err := p.reader.ReadByte()
				if err == nil && next == '"' {
					field = append(field, '"') // doubled quote
					continue
				}
				if err == nil {
					err = p.reader.UnreadByte()
					if err != nil {
						return nil, err
					}
				}
				inQuotes = false
				continue
			}
			field = append(field, c)
		case c == '"' && len(field) == 0:
			inQuotes = true
		case c == p.Delimiter:
			fields = append(fields, string(field))
			field = field[:0]
		case c == '\n':
			p.line++
			fields = append(fields, trimCR(string(field)))
			return fields, nil
		default:
			field = append(field, c)
		}
	}
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}
