// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/fetch"
)

// recordingSink collects everything an adapter emits, for mapper tests that
// do not involve a database.
type recordingSink struct {
	Operators  []core.Operator
	Assets     []core.Asset
	Production []core.ProductionRecord
	Staged     []core.StagedProduction
}

func (s *recordingSink) AddOperator(op core.Operator) error {
	s.Operators = append(s.Operators, op)
	return nil
}

func (s *recordingSink) AddAsset(asset core.Asset) error {
	s.Assets = append(s.Assets, asset)
	return nil
}

func (s *recordingSink) AddProduction(rec core.ProductionRecord) error {
	s.Production = append(s.Production, rec)
	return nil
}

func (s *recordingSink) StageProduction(row core.StagedProduction, windowDeg float64) error {
	s.Staged = append(s.Staged, row)
	return nil
}

func TestMapStatus(t *testing.T) {
	assert.DeepEqual(t, "known code", mapStatus(ndStatusTable, " a "), core.StatusActive)
	assert.DeepEqual(t, "shut-in code", mapStatus(ndStatusTable, "TA"), core.StatusShutIn)
	assert.DeepEqual(t, "unknown code", mapStatus(ndStatusTable, "XX"), core.StatusInactive)
	assert.DeepEqual(t, "empty code", mapStatus(ndStatusTable, ""), core.StatusInactive)
}

func TestParseFloat(t *testing.T) {
	if v := parseFloat(" 1,234.5 "); v == nil || *v != 1234.5 {
		t.Errorf("expected 1234.5, got %v", v)
	}
	if v := parseFloat("0"); v == nil || *v != 0 {
		t.Errorf("explicit zero must stay non-nil, got %v", v)
	}
	for _, raw := range []string{"", "n/a", "-1"} {
		if parseFloat(raw) != nil {
			t.Errorf("expected nil for %q", raw)
		}
	}
}

func TestParseInt(t *testing.T) {
	if v := parseInt("28"); v == nil || *v != 28 {
		t.Errorf("expected 28, got %v", v)
	}
	for _, raw := range []string{"", "-3", "2.5"} {
		if parseInt(raw) != nil {
			t.Errorf("expected nil for %q", raw)
		}
	}
}

func TestBasinFromCounty(t *testing.T) {
	table := map[string]string{"MIDLAND": "Permian"}

	basin := basinFromCounty(table, " midland ", nil)
	if basin == nil || *basin != "Permian" {
		t.Errorf("expected Permian, got %v", basin)
	}

	basin = basinFromCounty(table, "UNKNOWN", func() string { return "Anadarko" })
	if basin == nil || *basin != "Anadarko" {
		t.Errorf("expected the fallback basin, got %v", basin)
	}

	if basinFromCounty(table, "UNKNOWN", func() string { return "" }) != nil {
		t.Error("an empty fallback must yield nil")
	}
}

func TestCommodityFor(t *testing.T) {
	assert.DeepEqual(t, "gas well", commodityFor(core.AssetTypeGas), "natural gas")
	assert.DeepEqual(t, "oil well", commodityFor(core.AssetTypeOil), "crude oil")
}

func TestHeaderIndex(t *testing.T) {
	cols := headerIndex([]string{" APINo ", "ReportDate", "Oil"})

	idx, found := findColumn(cols, "apino", "api_no")
	assert.DeepEqual(t, "apino found", found, true)
	assert.DeepEqual(t, "apino index", idx, 0)

	idx, found = findColumn(cols, "bbls_oil", "oil")
	assert.DeepEqual(t, "oil found", found, true)
	assert.DeepEqual(t, "oil index", idx, 2)

	idx, found = findColumn(cols, "gas")
	assert.DeepEqual(t, "gas found", found, false)
	assert.DeepEqual(t, "gas index", idx, -1)
}

func TestDowntimeFromProducingDays(t *testing.T) {
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if downtimeFromProducingDays(june, nil) != nil {
		t.Error("nil producing days must yield nil downtime")
	}
	days := 25
	if v := downtimeFromProducingDays(june, &days); v == nil || *v != 5 {
		t.Errorf("expected 5 downtime days, got %v", v)
	}
	days = 35
	if v := downtimeFromProducingDays(june, &days); v == nil || *v != 0 {
		t.Errorf("overreported producing days must clamp to 0, got %v", v)
	}
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	days = 20
	if v := downtimeFromProducingDays(feb, &days); v == nil || *v != 8 {
		t.Errorf("expected 8 downtime days in February, got %v", v)
	}
}

func TestNDMonthlyFileMapping(t *testing.T) {
	dir := t.TempDir()
	csv := "APINo,ReportDate,Company,WellName,County,WellStatus,Oil,Gas,Days\n" +
		"3305312345,2026-06-01,CONTINENTAL RESOURCES INC,BONNEVILLE 1-1H,MCKENZIE,A,\"1,200.5\",3400,25\n" +
		"3305399999,2026-06-01,CONTINENTAL RESOURCES INC,IDLE 2-2H,MCKENZIE,SI,,,\n" +
		"3305311111,not-a-date,CONTINENTAL RESOURCES INC,BROKEN 3-3H,MCKENZIE,A,10,20,30\n"
	err := os.WriteFile(filepath.Join(dir, "production_2026-06.csv"), []byte(csv), 0644)
	if err != nil {
		t.Fatal(err)
	}

	adapter := ndNDICAdapter{URLTemplate: "https://example.com/%s.csv", MonthsBack: 3}
	sink := &recordingSink{}
	stats, err := adapter.Ingest(context.Background(), fetch.Stage{Dir: dir}, sink)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}

	assert.DeepEqual(t, "parse errors", stats.ParseErrors, 1)
	assert.DeepEqual(t, "skipped rows", stats.SkippedRows, 1)
	assert.DeepEqual(t, "asset count", len(sink.Assets), 2)
	assert.DeepEqual(t, "production count", len(sink.Production), 1)

	asset := sink.Assets[0]
	assert.DeepEqual(t, "asset ID", asset.ID, "nd_ndic_3305312345")
	assert.DeepEqual(t, "asset name", asset.Name, "Bonneville 1-1h")
	assert.DeepEqual(t, "asset state", asset.State, "ND")
	assert.DeepEqual(t, "asset county", asset.County, "Mckenzie")
	assert.DeepEqual(t, "asset status", asset.Status, core.StatusActive)
	if asset.Basin == nil || *asset.Basin != "Williston" {
		t.Errorf("expected the Williston basin, got %v", asset.Basin)
	}

	operator := sink.Operators[0]
	assert.DeepEqual(t, "operator ID", operator.ID, "nd_ndic_OP_continentalresources")
	assert.DeepEqual(t, "operator name", operator.LegalName, "Continental Resources Inc")

	prod := sink.Production[0]
	assert.DeepEqual(t, "production month", prod.Month, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if prod.OilBBL == nil || *prod.OilBBL != 1200.5 {
		t.Errorf("expected 1200.5 bbl, got %v", prod.OilBBL)
	}
	if prod.GasMCF == nil || *prod.GasMCF != 3400 {
		t.Errorf("expected 3400 mcf, got %v", prod.GasMCF)
	}
	if prod.DowntimeDays == nil || *prod.DowntimeDays != 5 {
		t.Errorf("expected 5 downtime days, got %v", prod.DowntimeDays)
	}
}
