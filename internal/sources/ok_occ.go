// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/fetch"
	"github.com/petrodata/wellhead/internal/parse"
	"github.com/petrodata/wellhead/internal/util"
)

func init() {
	core.SourceAdapterRegistry.Add(func() core.SourceAdapter { return &okOCCAdapter{} })
}

// okOCCAdapter ingests Oklahoma Corporation Commission data: the well layer
// of their ArcGIS FeatureServer, staged as JSONL, plus a static CSV with
// monthly production volumes keyed by API number.
type okOCCAdapter struct {
	WellsURL      string `yaml:"wells_url"`
	ProductionURL string `yaml:"production_url"`
	PageSize      int    `yaml:"page_size"`

	client *fetch.Client
}

const okAPIWidth = 10

// PluginTypeID implements the core.SourceAdapter interface.
func (a *okOCCAdapter) PluginTypeID() string { return "ok_occ" }

// Init implements the core.SourceAdapter interface.
func (a *okOCCAdapter) Init(client *fetch.Client, cfg core.SourceConfiguration) error {
	a.client = client
	if a.WellsURL == "" || a.ProductionURL == "" {
		return fmt.Errorf("source %s: missing params.wells_url or params.production_url", a.PluginTypeID())
	}
	return nil
}

// SourceURL implements the core.SourceAdapter interface.
func (a *okOCCAdapter) SourceURL() string { return a.WellsURL }

// Download implements the core.SourceAdapter interface. The FeatureServer is
// paged during the download phase and staged as JSONL, so the ingest phase
// never talks to the network.
func (a *okOCCAdapter) Download(ctx context.Context, stage fetch.Stage) error {
	if !stage.Has("wells.jsonl") {
		writer, err := parse.NewJSONLWriter(stage.Path("wells.jsonl"))
		if err != nil {
			return err
		}
		arcgis := fetch.ArcGISClient{
			Client:   a.client,
			BaseURL:  a.WellsURL,
			PageSize: a.PageSize,
			Pause:    2 * time.Second,
		}
		err = arcgis.Query(ctx, "", "OBJECTID", func(feature fetch.ArcGISFeature) error {
			buf, err := json.Marshal(feature)
			if err != nil {
				return err
			}
			return writer.Write(buf)
		})
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}

	if !stage.Has("production.csv") {
		err := a.client.DownloadFile(ctx, a.ProductionURL, stage.Path("production.csv"))
		if err != nil {
			return err
		}
	}
	return nil
}

var okStatusTable = map[string]core.AssetStatus{
	"AC": core.StatusActive,
	"PR": core.StatusActive, // producing
	"DR": core.StatusActive, // drilling
	"IJ": core.StatusActive, // injecting
	"SI": core.StatusShutIn,
	"TA": core.StatusShutIn,
}

var basinsOK = map[string]string{
	"BEAVER":     "Anadarko",
	"BLAINE":     "Anadarko",
	"CADDO":      "Anadarko",
	"CANADIAN":   "Anadarko",
	"CUSTER":     "Anadarko",
	"DEWEY":      "Anadarko",
	"GRADY":      "Anadarko",
	"KINGFISHER": "Anadarko",
	"TEXAS":      "Anadarko",
	"CARTER":     "Ardmore",
	"LOVE":       "Ardmore",
	"COAL":       "Arkoma",
	"HUGHES":     "Arkoma",
	"PITTSBURG":  "Arkoma",
}

// Ingest implements the core.SourceAdapter interface.
func (a *okOCCAdapter) Ingest(ctx context.Context, stage fetch.Stage, sink core.RecordSink) (core.IngestStats, error) {
	var stats core.IngestStats
	err := a.ingestWells(stage, sink, &stats)
	if err != nil {
		return stats, err
	}
	err = a.ingestProduction(ctx, stage, sink, &stats)
	return stats, err
}

func (a *okOCCAdapter) ingestWells(stage fetch.Stage, sink core.RecordSink, stats *core.IngestStats) error {
	return parse.ForeachJSONLRecord(stage.Path("wells.jsonl"), func(record json.RawMessage) error {
		var feature fetch.ArcGISFeature
		err := json.Unmarshal(record, &feature)
		if err != nil {
			stats.ParseErrors++
			return nil
		}
		rawAPI := feature.Str("API_NUMBER", "API", "API_NO")
		if rawAPI == "" {
			stats.ParseErrors++
			return nil
		}
		assetID := util.AssetIDFromAPI(a.PluginTypeID(), rawAPI, okAPIWidth)

		var operatorID *string
		rawOperator := feature.Str("OPERATOR", "OPER_NAME", "OPERATOR_NAME")
		if rawOperator != "" {
			if number := feature.Str("OPERATOR_NUMBER", "OPER_NO"); number != "" {
				id := util.OperatorIDFromNumber(a.PluginTypeID(), number)
				operatorID = &id
			} else {
				id := util.OperatorIDFromName(a.PluginTypeID(), rawOperator)
				operatorID = &id
			}
			err := sink.AddOperator(core.Operator{
				ID:        *operatorID,
				LegalName: util.CanonicalName(rawOperator),
				RawNames:  []string{rawOperator},
			})
			if err != nil {
				return err
			}
		}

		assetType := core.AssetTypeOil
		typeCode := strings.ToUpper(feature.Str("WELL_TYPE", "WELLTYPE", "TYPE"))
		if strings.Contains(typeCode, "GAS") || typeCode == "G" || typeCode == "CBM" {
			assetType = core.AssetTypeGas
		}

		var latitude, longitude float64
		if feature.Geometry != nil {
			latitude, longitude = feature.Geometry.Y, feature.Geometry.X
		}
		county := util.CanonicalName(feature.Str("COUNTY", "COUNTY_NAME"))

		asset := core.Asset{
			ID:         assetID,
			Type:       assetType,
			Name:       util.CanonicalName(feature.Str("WELL_NAME", "WELLNAME", "NAME")),
			State:      "OK",
			County:     county,
			Latitude:   latitude,
			Longitude:  longitude,
			Basin:      basinFromCounty(basinsOK, county, nil),
			OperatorID: operatorID,
			Status:     mapStatus(okStatusTable, feature.Str("WELL_STATUS", "STATUS")),
			SpudDate:   util.ParseLooseDate(feature.Str("SPUD_DATE", "SPUD")),
			DepthFt:    feature.Float("TOTAL_DEPTH", "DEPTH", "TD"),
			Commodity:  commodityFor(assetType),
		}
		return sink.AddAsset(asset)
	})
}

// The production CSV is comma-delimited with a header row. Column positions
// are taken from the header, since the agency reorders them occasionally.
func (a *okOCCAdapter) ingestProduction(ctx context.Context, stage fetch.Stage, sink core.RecordSink, stats *core.IngestStats) error {
	file, err := os.Open(stage.Path("production.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	reader := parse.NewPipeReader(file)
	reader.Delimiter = ','

	header, err := reader.Read()
	if err != nil {
		return err
	}
	cols := headerIndex(header)
	apiCol, hasAPI := findColumn(cols, "api", "api_number")
	monthCol, hasMonth := findColumn(cols, "month", "report_month", "period")
	oilCol, _ := findColumn(cols, "oil", "oil_bbl", "oil_volume")
	gasCol, _ := findColumn(cols, "gas", "gas_mcf", "gas_volume")
	if !hasAPI || !hasMonth {
		return fmt.Errorf("production.csv header has no api/month column: %v", header)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(record) <= monthCol || len(record) <= apiCol {
			stats.ParseErrors++
			continue
		}
		month := util.ParseLooseDate(record[monthCol])
		if month == nil || record[apiCol] == "" {
			stats.ParseErrors++
			continue
		}
		rec := core.ProductionRecord{
			AssetID: util.AssetIDFromAPI(a.PluginTypeID(), record[apiCol], okAPIWidth),
			Month:   util.MonthStart(*month),
			OilBBL:  columnFloat(record, oilCol),
			GasMCF:  columnFloat(record, gasCol),
		}
		if rec.OilBBL == nil && rec.GasMCF == nil {
			stats.SkippedRows++
			continue
		}
		err = sink.AddProduction(rec)
		if err != nil {
			return err
		}
	}
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for idx, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	return cols
}

func findColumn(cols map[string]int, names ...string) (int, bool) {
	for _, name := range names {
		if idx, exists := cols[name]; exists {
			return idx, true
		}
	}
	return -1, false
}

func columnFloat(record []string, col int) *float64 {
	if col < 0 || col >= len(record) {
		return nil
	}
	return parseFloat(record[col])
}
