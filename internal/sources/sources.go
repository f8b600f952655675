// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

// Package sources contains one adapter per regulatory source. Each adapter
// registers itself with core.SourceAdapterRegistry under its source tag; the
// command layer enables adapters by listing their tags in the config file.
package sources

import (
	"strconv"
	"strings"

	"github.com/petrodata/wellhead/internal/core"
)

// mapStatus collapses a source status code into the canonical status set via
// the source's table. Codes not in the table mean inactive.
func mapStatus(table map[string]core.AssetStatus, raw string) core.AssetStatus {
	if status, exists := table[strings.ToUpper(strings.TrimSpace(raw))]; exists {
		return status
	}
	return core.StatusInactive
}

// commodityFor derives the commodity label from the asset type.
func commodityFor(assetType core.AssetType) string {
	if assetType == core.AssetTypeGas {
		return "natural gas"
	}
	return "crude oil"
}

// parseFloat converts a source volume field to a nullable float. Empty and
// unparseable values become nil, as do negative ones (some feeds use -1 as a
// "not reported" marker).
func parseFloat(raw string) *float64 {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return nil
	}
	return &value
}

// parseInt is like parseFloat, for integer fields.
func parseInt(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return nil
	}
	return &value
}

// isZero reports whether a nullable volume is missing or exactly zero.
func isZero(value *float64) bool {
	return value == nil || *value == 0
}

// basinFromCounty looks up the county in the source's basin table, falling
// back to the given latitude-band rule. A nil result means "basin unknown".
func basinFromCounty(table map[string]string, county string, fallback func() string) *string {
	if basin, exists := table[strings.ToUpper(strings.TrimSpace(county))]; exists {
		return &basin
	}
	if fallback != nil {
		if basin := fallback(); basin != "" {
			return &basin
		}
	}
	return nil
}
