// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"time"
)

// AssetType classifies an asset. Regulatory sources in this project only
// produce oil and gas wells, but the schema is shared with ingesters for
// other energy verticals.
type AssetType string

const (
	AssetTypeOil    AssetType = "oil"
	AssetTypeGas    AssetType = "gas"
	AssetTypeMining AssetType = "mining"
	AssetTypeEnergy AssetType = "energy"
)

// AssetStatus is the canonical well status. Source-specific status codes are
// collapsed into these three values by each mapper.
type AssetStatus string

const (
	StatusActive   AssetStatus = "active"
	StatusInactive AssetStatus = "inactive"
	StatusShutIn   AssetStatus = "shut-in"
)

// Asset is a single well (or occasionally a lease treated as a unit) in
// canonical form, as produced by a source mapper. The ID is deterministic
// from (source, natural key) and never changes across re-ingestion.
type Asset struct {
	ID        string
	Type      AssetType
	Name      string
	State     string
	County    string
	Latitude  float64 // 0/0 means "location unknown", not a point on the equator
	Longitude float64
	Basin     *string
	// OperatorID may be nil when the source does not name an operator; the
	// linker repairs those after dedup.
	OperatorID *string
	Status     AssetStatus
	SpudDate   *time.Time
	DepthFt    *float64
	Commodity  string
}

// Operator is a producing company in canonical form. RawNames preserves every
// source spelling seen during this ingestion; the loader accumulates them
// into the persistent alias set.
type Operator struct {
	ID        string
	LegalName string
	RawNames  []string
	HQState   *string
	HQCity    *string
}

// ProductionRecord holds one month of volumes for one asset. Month is always
// the first of the month in UTC.
type ProductionRecord struct {
	AssetID      string
	Month        time.Time
	OilBBL       *float64
	GasMCF       *float64
	OreTons      *float64
	WaterCutPct  *float64
	DowntimeDays *int
}

// StagedProduction is a production row that carries coordinates instead of an
// asset key. The loader matches it to the nearest existing asset inside the
// database (see the spatial staging in internal/ingest).
type StagedProduction struct {
	Latitude     float64
	Longitude    float64
	Month        time.Time
	OilBBL       *float64
	GasMCF       *float64
	WaterCutPct  *float64
	DowntimeDays *int
}

// Ptr returns a pointer to the given value. Mapper code uses it to fill the
// nullable entity fields.
func Ptr[T any](v T) *T {
	return &v
}
