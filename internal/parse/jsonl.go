// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package parse

import (
	"bufio"
	"encoding/json"
	"os"
)

// JSONLWriter appends one JSON document per line to a staging file. API
// sources stage their paged responses as JSONL so that download and ingest
// stay separate phases.
type JSONLWriter struct {
	file *os.File
	buf  *bufio.Writer
}

// NewJSONLWriter creates (truncates) the staging file.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &JSONLWriter{file: file, buf: bufio.NewWriter(file)}, nil
}

// Write appends one record.
func (w *JSONLWriter) Write(record json.RawMessage) error {
	_, err := w.buf.Write(record)
	if err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

// Close flushes and closes the staging file.
func (w *JSONLWriter) Close() error {
	err := w.buf.Flush()
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// ForeachJSONLRecord streams a staged JSONL file, calling action once per
// line. Memory use is bounded by the longest single record.
func ForeachJSONLRecord(path string, action func(json.RawMessage) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		record := make(json.RawMessage, len(line))
		copy(record, line)
		err := action(record)
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}
