// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/lib/pq"
)

// Asset contains a record from the `assets` table.
type Asset struct {
	ID                     string     `db:"id"`
	AssetType              string     `db:"asset_type"`
	Name                   string     `db:"name"`
	State                  string     `db:"state"`
	County                 string     `db:"county"`
	Latitude               float64    `db:"latitude"`
	Longitude              float64    `db:"longitude"`
	Basin                  *string    `db:"basin"` //pointer type to allow for NULL value
	OperatorID             *string    `db:"operator_id"`
	Status                 string     `db:"status"`
	SpudDate               *time.Time `db:"spud_date"`
	DepthFt                *float64   `db:"depth_ft"`
	Commodity              string     `db:"commodity"`
	DeclineRate            *float64   `db:"decline_rate"`
	EstRemainingLifeMonths *int64     `db:"estimated_remaining_life_months"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}

// Operator contains a record from the `operators` table.
type Operator struct {
	ID               string         `db:"id"`
	LegalName        string         `db:"legal_name"`
	Aliases          pq.StringArray `db:"aliases"`
	HQState          *string        `db:"hq_state"`
	HQCity           *string        `db:"hq_city"`
	ActiveAssetCount int64          `db:"active_asset_count"`
	ComplianceFlags  pq.StringArray `db:"compliance_flags"`
	RiskScore        *float64       `db:"risk_score"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// ProductionRecord contains a record from the `production_records` table.
type ProductionRecord struct {
	ID           int64     `db:"id"`
	AssetID      string    `db:"asset_id"`
	Month        time.Time `db:"month"`
	OilVolumeBBL *float64  `db:"oil_volume_bbl"`
	GasVolumeMCF *float64  `db:"gas_volume_mcf"`
	OreVolumeT   *float64  `db:"ore_volume_tons"`
	WaterCutPct  *float64  `db:"water_cut_pct"`
	DowntimeDays *int64    `db:"downtime_days"`
	CreatedAt    time.Time `db:"created_at"`
}

// FinancialEstimate contains a record from the `financial_estimates` table.
// These rows are written by the financial calculator; the ingestion core only
// remaps them during asset merges.
type FinancialEstimate struct {
	ID                int64     `db:"id"`
	AssetID           string    `db:"asset_id"`
	NPVUSD            *float64  `db:"npv_usd"`
	MonthlyRevenueUSD *float64  `db:"monthly_revenue_usd"`
	AsOfDate          time.Time `db:"as_of_date"`
}

// ProvenanceStatus is the outcome of one ingestion run.
type ProvenanceStatus string

const (
	ProvenanceSuccess ProvenanceStatus = "success"
	ProvenancePartial ProvenanceStatus = "partial"
	ProvenanceFailed  ProvenanceStatus = "failed"
)

// DataProvenance contains a record from the `data_provenance` table. One row
// is written per source per ingestion run, regardless of outcome.
type DataProvenance struct {
	ID          int64            `db:"id"`
	SourceName  string           `db:"source_name"`
	SourceURL   string           `db:"source_url"`
	IngestedAt  time.Time        `db:"ingested_at"`
	RecordCount int64            `db:"record_count"`
	Status      ProvenanceStatus `db:"status"`
	Notes       string           `db:"notes"`
}

func initGorp(dbMap *gorp.DbMap) {
	dbMap.AddTableWithName(Asset{}, "assets").SetKeys(false, "id")
	dbMap.AddTableWithName(Operator{}, "operators").SetKeys(false, "id")
	dbMap.AddTableWithName(ProductionRecord{}, "production_records").SetKeys(true, "id")
	dbMap.AddTableWithName(FinancialEstimate{}, "financial_estimates").SetKeys(true, "id")
	dbMap.AddTableWithName(DataProvenance{}, "data_provenance").SetKeys(true, "id")
}
