// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"strings"
	"time"
)

// looseDateFormats lists the date representations observed across source
// feeds, in the order they are tried.
var looseDateFormats = []string{
	"20060102",
	"01/02/2006",
	"2006-01-02",
	"200601",
}

// ParseLooseDate parses the date formats that appear in regulatory source
// feeds (YYYYMMDD, MM/DD/YYYY, YYYY-MM-DD, YYYYMM). Unparseable input yields
// nil instead of an error; the caller counts it as a null field, not a
// failure. All results are in UTC.
func ParseLooseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Trim(raw, "0") == "" {
		return nil
	}
	for _, format := range looseDateFormats {
		if len(raw) != len(format) {
			continue
		}
		t, err := time.ParseInLocation(format, raw, time.UTC)
		if err == nil {
			return &t
		}
	}
	return nil
}

// MonthStart normalizes a timestamp to midnight UTC on the first of its
// month. Production records are keyed on this value.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
