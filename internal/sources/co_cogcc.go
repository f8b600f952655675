// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/fetch"
	"github.com/petrodata/wellhead/internal/parse"
	"github.com/petrodata/wellhead/internal/util"
)

func init() {
	core.SourceAdapterRegistry.Add(func() core.SourceAdapter { return &coCOGCCAdapter{} })
}

// coCOGCCAdapter ingests two static CSV downloads from the Colorado Energy &
// Carbon Management Commission: the well surface-location table, and a
// production table that carries coordinates but no API number. Production is
// therefore staged for the nearest-asset spatial join; the commission's
// surveyed coordinates are good to roughly 200 m, hence the tight window.
type coCOGCCAdapter struct {
	WellsURL      string `yaml:"wells_url"`
	ProductionURL string `yaml:"production_url"`

	client *fetch.Client
}

const (
	coAPIWidth           = 10
	coProximityWindowDeg = 0.002
)

// PluginTypeID implements the core.SourceAdapter interface.
func (a *coCOGCCAdapter) PluginTypeID() string { return "co_cogcc" }

// Init implements the core.SourceAdapter interface.
func (a *coCOGCCAdapter) Init(client *fetch.Client, cfg core.SourceConfiguration) error {
	a.client = client
	if a.WellsURL == "" || a.ProductionURL == "" {
		return fmt.Errorf("source %s: missing params.wells_url or params.production_url", a.PluginTypeID())
	}
	return nil
}

// SourceURL implements the core.SourceAdapter interface.
func (a *coCOGCCAdapter) SourceURL() string { return a.WellsURL }

// Download implements the core.SourceAdapter interface.
func (a *coCOGCCAdapter) Download(ctx context.Context, stage fetch.Stage) error {
	for _, file := range []struct{ url, name string }{
		{a.WellsURL, "wells.csv"},
		{a.ProductionURL, "production.csv"},
	} {
		if stage.Has(file.name) {
			continue
		}
		err := a.client.DownloadFile(ctx, file.url, stage.Path(file.name))
		if err != nil {
			return err
		}
	}
	return nil
}

var coStatusTable = map[string]core.AssetStatus{
	"PR": core.StatusActive, // producing
	"DG": core.StatusActive, // drilling
	"WO": core.StatusActive, // waiting on completion
	"IJ": core.StatusActive, // injecting
	"SI": core.StatusShutIn,
	"TA": core.StatusShutIn,
}

var basinsCO = map[string]string{
	"ADAMS":      "Denver-Julesburg",
	"ARAPAHOE":   "Denver-Julesburg",
	"BROOMFIELD": "Denver-Julesburg",
	"LARIMER":    "Denver-Julesburg",
	"MORGAN":     "Denver-Julesburg",
	"WELD":       "Denver-Julesburg",
	"GARFIELD":   "Piceance",
	"MESA":       "Piceance",
	"RIO BLANCO": "Piceance",
	"ARCHULETA":  "San Juan",
	"LA PLATA":   "San Juan",
}

// Ingest implements the core.SourceAdapter interface.
func (a *coCOGCCAdapter) Ingest(ctx context.Context, stage fetch.Stage, sink core.RecordSink) (core.IngestStats, error) {
	var stats core.IngestStats
	err := a.ingestWells(ctx, stage, sink, &stats)
	if err != nil {
		return stats, err
	}
	err = a.ingestProduction(ctx, stage, sink, &stats)
	return stats, err
}

func (a *coCOGCCAdapter) ingestWells(ctx context.Context, stage fetch.Stage, sink core.RecordSink, stats *core.IngestStats) error {
	file, err := os.Open(stage.Path("wells.csv"))
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
	apiCol, hasAPI := findColumn(cols, "api", "api_number", "api_num")
	if !hasAPI {
		return fmt.Errorf("wells.csv header has no api column: %v", header)
	}
	nameCol, _ := findColumn(cols, "well_name", "well_title", "name")
	operatorCol, _ := findColumn(cols, "operator", "operator_name")
	operatorNumCol, _ := findColumn(cols, "operator_num", "operator_number")
	statusCol, _ := findColumn(cols, "facil_status", "well_status", "status")
	typeCol, _ := findColumn(cols, "facil_type", "well_type", "type")
	countyCol, _ := findColumn(cols, "county", "county_name")
	latCol, _ := findColumn(cols, "latitude", "lat")
	lonCol, _ := findColumn(cols, "longitude", "long", "lon")
	spudCol, _ := findColumn(cols, "spud_date", "spud")
	depthCol, _ := findColumn(cols, "max_tvd", "total_depth", "depth")

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
		if apiCol >= len(record) || strings.TrimSpace(record[apiCol]) == "" {
			stats.ParseErrors++
			continue
		}

		var operatorID *string
		if rawOperator := columnStr(record, operatorCol); rawOperator != "" {
			var id string
			if number := columnStr(record, operatorNumCol); number != "" {
				id = util.OperatorIDFromNumber(a.PluginTypeID(), number)
			} else {
				id = util.OperatorIDFromName(a.PluginTypeID(), rawOperator)
			}
			operatorID = &id
			err := sink.AddOperator(core.Operator{
				ID:        id,
				LegalName: util.CanonicalName(rawOperator),
				RawNames:  []string{rawOperator},
			})
			if err != nil {
				return err
			}
		}

		assetType := core.AssetTypeOil
		if typeCode := strings.ToUpper(columnStr(record, typeCol)); strings.Contains(typeCode, "GAS") || typeCode == "G" || typeCode == "CBM" {
			assetType = core.AssetTypeGas
		}
		county := util.CanonicalName(columnStr(record, countyCol))

		var latitude, longitude float64
		if v := parseNegFloat(columnStr(record, latCol)); v != nil {
			latitude = *v
		}
		if v := parseNegFloat(columnStr(record, lonCol)); v != nil {
			longitude = *v
		}

		err = sink.AddAsset(core.Asset{
			ID:         util.AssetIDFromAPI(a.PluginTypeID(), record[apiCol], coAPIWidth),
			Type:       assetType,
			Name:       util.CanonicalName(columnStr(record, nameCol)),
			State:      "CO",
			County:     county,
			Latitude:   latitude,
			Longitude:  longitude,
			Basin:      basinFromCounty(basinsCO, county, func() string { return coBasinFromLongitude(longitude) }),
			OperatorID: operatorID,
			Status:     mapStatus(coStatusTable, columnStr(record, statusCol)),
			SpudDate:   util.ParseLooseDate(columnStr(record, spudCol)),
			DepthFt:    parseFloat(columnStr(record, depthCol)),
			Commodity:  commodityFor(assetType),
		})
		if err != nil {
			return err
		}
	}
}

// the continental divide splits the state's producing regions cleanly enough
// for a fallback rule
func coBasinFromLongitude(longitude float64) string {
	switch {
	case longitude == 0:
		return ""
	case longitude < -106.5:
		return "Piceance"
	default:
		return "Denver-Julesburg"
	}
}

// The production table has coordinates but no stable well key, so rows are
// staged for the spatial join. Rows with zero volumes are dropped here: this
// feed restates historic zero months for every plugged well, and matching
// them spatially would only manufacture noise.
func (a *coCOGCCAdapter) ingestProduction(ctx context.Context, stage fetch.Stage, sink core.RecordSink, stats *core.IngestStats) error {
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
	latCol, hasLat := findColumn(cols, "latitude", "lat")
	lonCol, hasLon := findColumn(cols, "longitude", "long", "lon")
	monthCol, hasMonth := findColumn(cols, "month", "report_month", "prod_month")
	if !hasLat || !hasLon || !hasMonth {
		return fmt.Errorf("production.csv header has no latitude/longitude/month columns: %v", header)
	}
	oilCol, _ := findColumn(cols, "oil", "oil_bbl", "oil_prod")
	gasCol, _ := findColumn(cols, "gas", "gas_mcf", "gas_prod")
	waterCutCol, _ := findColumn(cols, "water_cut_pct", "water_cut")
	downtimeCol, _ := findColumn(cols, "downtime_days", "days_down")

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

		month := util.ParseLooseDate(columnStr(record, monthCol))
		latitude := parseNegFloat(columnStr(record, latCol))
		longitude := parseNegFloat(columnStr(record, lonCol))
		if month == nil || latitude == nil || longitude == nil {
			stats.ParseErrors++
			continue
		}
		oil := columnFloat(record, oilCol)
		gas := columnFloat(record, gasCol)
		if isZero(oil) && isZero(gas) {
			stats.SkippedRows++
			continue
		}

		err = sink.StageProduction(core.StagedProduction{
			Latitude:     *latitude,
			Longitude:    *longitude,
			Month:        util.MonthStart(*month),
			OilBBL:       oil,
			GasMCF:       gas,
			WaterCutPct:  columnFloat(record, waterCutCol),
			DowntimeDays: columnInt(record, downtimeCol),
		}, coProximityWindowDeg)
		if err != nil {
			return err
		}
	}
}

func columnStr(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}

func columnInt(record []string, col int) *int {
	if col < 0 || col >= len(record) {
		return nil
	}
	return parseInt(record[col])
}
