// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/fetch"
	"github.com/petrodata/wellhead/internal/parse"
	"github.com/petrodata/wellhead/internal/util"
)

func init() {
	core.SourceAdapterRegistry.Add(func() core.SourceAdapter { return &nmOCDAdapter{} })
}

// nmOCDAdapter ingests the New Mexico Oil Conservation Division's JSON API.
// The API wants a JWT from an email+password login; credentials come from the
// NM_OCD_API_EMAIL / NM_OCD_API_PASSWORD environment variables. Both the well
// and production endpoints are staged as JSONL during the download phase.
type nmOCDAdapter struct {
	BaseURL  string `yaml:"base_url"`
	PageSize int    `yaml:"page_size"`

	client *fetch.Client
}

const nmAPIWidth = 10

// PluginTypeID implements the core.SourceAdapter interface.
func (a *nmOCDAdapter) PluginTypeID() string { return "nm_ocd" }

// Init implements the core.SourceAdapter interface.
func (a *nmOCDAdapter) Init(client *fetch.Client, cfg core.SourceConfiguration) error {
	a.client = client
	if a.BaseURL == "" {
		return fmt.Errorf("source %s: missing params.base_url", a.PluginTypeID())
	}
	if os.Getenv("NM_OCD_API_EMAIL") == "" || os.Getenv("NM_OCD_API_PASSWORD") == "" {
		return fmt.Errorf("source %s: NM_OCD_API_EMAIL and NM_OCD_API_PASSWORD must be set", a.PluginTypeID())
	}
	return nil
}

// SourceURL implements the core.SourceAdapter interface.
func (a *nmOCDAdapter) SourceURL() string { return a.BaseURL }

// Download implements the core.SourceAdapter interface.
func (a *nmOCDAdapter) Download(ctx context.Context, stage fetch.Stage) error {
	api := fetch.JSONAPIClient{
		Client:   a.client,
		BaseURL:  a.BaseURL,
		Email:    os.Getenv("NM_OCD_API_EMAIL"),
		Password: os.Getenv("NM_OCD_API_PASSWORD"),
		PageSize: a.PageSize,
	}

	for _, endpoint := range []struct{ path, file string }{
		{"/wells", "wells.jsonl"},
		{"/production", "production.jsonl"},
	} {
		if stage.Has(endpoint.file) {
			continue
		}
		writer, err := parse.NewJSONLWriter(stage.Path(endpoint.file))
		if err != nil {
			return err
		}
		err = api.GetPaged(ctx, endpoint.path, nil, func(record json.RawMessage) error {
			return writer.Write(record)
		})
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// nmWellRecord is the typed shape of one /wells record. encoding/json matches
// field names case-insensitively, which absorbs most of the schema drift.
type nmWellRecord struct {
	API            string   `json:"api"`
	WellName       string   `json:"well_name"`
	OperatorName   string   `json:"operator_name"`
	OperatorNumber string   `json:"operator_number"`
	Status         string   `json:"status"`
	WellType       string   `json:"well_type"`
	County         string   `json:"county"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	SpudDate       string   `json:"spud_date"`
	DepthFt        *float64 `json:"depth_ft"`
}

type nmProductionRecord struct {
	API          string   `json:"api"`
	Month        string   `json:"month"`
	OilBBL       *float64 `json:"oil_bbl"`
	GasMCF       *float64 `json:"gas_mcf"`
	WaterCutPct  *float64 `json:"water_cut_pct"`
	DowntimeDays *int     `json:"downtime_days"`
}

var nmStatusTable = map[string]core.AssetStatus{
	"A": core.StatusActive, // active/producing
	"P": core.StatusActive, // permitted
	"D": core.StatusActive, // drilling
	"S": core.StatusShutIn,
	"T": core.StatusShutIn, // temporarily abandoned
}

var basinsNM = map[string]string{
	"CHAVES":     "Permian",
	"EDDY":       "Permian",
	"LEA":        "Permian",
	"ROOSEVELT":  "Permian",
	"RIO ARRIBA": "San Juan",
	"SAN JUAN":   "San Juan",
	"SANDOVAL":   "San Juan",
	"MCKINLEY":   "San Juan",
}

// Ingest implements the core.SourceAdapter interface.
func (a *nmOCDAdapter) Ingest(ctx context.Context, stage fetch.Stage, sink core.RecordSink) (core.IngestStats, error) {
	var stats core.IngestStats

	err := parse.ForeachJSONLRecord(stage.Path("wells.jsonl"), func(raw json.RawMessage) error {
		var record nmWellRecord
		err := json.Unmarshal(raw, &record)
		if err != nil || record.API == "" {
			stats.ParseErrors++
			return nil
		}
		return a.mapWell(record, sink)
	})
	if err != nil {
		return stats, err
	}

	err = parse.ForeachJSONLRecord(stage.Path("production.jsonl"), func(raw json.RawMessage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var record nmProductionRecord
		err := json.Unmarshal(raw, &record)
		if err != nil || record.API == "" {
			stats.ParseErrors++
			return nil
		}
		month := util.ParseLooseDate(record.Month)
		if month == nil {
			stats.ParseErrors++
			return nil
		}
		// zero months are reported as-is here; the OCD distinguishes "did not
		// produce" (zeros) from "did not report" (absent row)
		if record.OilBBL == nil && record.GasMCF == nil {
			stats.SkippedRows++
			return nil
		}
		return sink.AddProduction(core.ProductionRecord{
			AssetID:      util.AssetIDFromAPI(a.PluginTypeID(), record.API, nmAPIWidth),
			Month:        util.MonthStart(*month),
			OilBBL:       record.OilBBL,
			GasMCF:       record.GasMCF,
			WaterCutPct:  record.WaterCutPct,
			DowntimeDays: record.DowntimeDays,
		})
	})
	return stats, err
}

func (a *nmOCDAdapter) mapWell(record nmWellRecord, sink core.RecordSink) error {
	var operatorID *string
	if record.OperatorName != "" {
		var id string
		if record.OperatorNumber != "" {
			id = util.OperatorIDFromNumber(a.PluginTypeID(), record.OperatorNumber)
		} else {
			id = util.OperatorIDFromName(a.PluginTypeID(), record.OperatorName)
		}
		operatorID = &id
		err := sink.AddOperator(core.Operator{
			ID:        id,
			LegalName: util.CanonicalName(record.OperatorName),
			RawNames:  []string{record.OperatorName},
		})
		if err != nil {
			return err
		}
	}

	assetType := core.AssetTypeOil
	switch record.WellType {
	case "G", "g", "GAS", "CBM", "C":
		assetType = core.AssetTypeGas
	}
	county := util.CanonicalName(record.County)

	return sink.AddAsset(core.Asset{
		ID:         util.AssetIDFromAPI(a.PluginTypeID(), record.API, nmAPIWidth),
		Type:       assetType,
		Name:       util.CanonicalName(record.WellName),
		State:      "NM",
		County:     county,
		Latitude:   record.Latitude,
		Longitude:  record.Longitude,
		Basin:      basinFromCounty(basinsNM, county, func() string { return a.basinFromLatitude(record.Latitude) }),
		OperatorID: operatorID,
		Status:     mapStatus(nmStatusTable, record.Status),
		SpudDate:   util.ParseLooseDate(record.SpudDate),
		DepthFt:    record.DepthFt,
		Commodity:  commodityFor(assetType),
	})
}

// the San Juan basin fills the state's northwest; everything south of the
// 35th parallel that we cannot place by county is Permian
func (a *nmOCDAdapter) basinFromLatitude(latitude float64) string {
	switch {
	case latitude == 0:
		return ""
	case latitude > 35.5:
		return "San Juan"
	default:
		return "Permian"
	}
}
