// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sapcc/go-bits/logg"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/fetch"
	"github.com/petrodata/wellhead/internal/parse"
	"github.com/petrodata/wellhead/internal/util"
)

func init() {
	core.SourceAdapterRegistry.Add(func() core.SourceAdapter { return &txRRCAdapter{} })
}

// txRRCAdapter ingests the Texas Railroad Commission bulk dumps: the
// pipe-delimited Production Data Query dump (wells and monthly volumes, the
// largest file in the whole pipeline) and the fixed-width P-5 organization
// file (operator registrations). Both sit behind a GoAnywhere MFT portal.
type txRRCAdapter struct {
	PortalURL string `yaml:"portal_url"`
	PDQHint   string `yaml:"pdq_file_hint"`
	P5Hint    string `yaml:"p5_file_hint"`

	client *fetch.Client
}

// Texas API numbers are 14 digits once the state, county and well components
// are concatenated without dashes.
const txAPIWidth = 14

// PluginTypeID implements the core.SourceAdapter interface.
func (a *txRRCAdapter) PluginTypeID() string { return "tx_rrc" }

// Init implements the core.SourceAdapter interface.
func (a *txRRCAdapter) Init(client *fetch.Client, cfg core.SourceConfiguration) error {
	a.client = client
	if a.PortalURL == "" {
		return fmt.Errorf("source %s: missing params.portal_url", a.PluginTypeID())
	}
	if a.PDQHint == "" {
		a.PDQHint = "PDQ_DSV"
	}
	if a.P5Hint == "" {
		a.P5Hint = "orf850"
	}
	return nil
}

// SourceURL implements the core.SourceAdapter interface.
func (a *txRRCAdapter) SourceURL() string { return a.PortalURL }

// Download implements the core.SourceAdapter interface.
func (a *txRRCAdapter) Download(ctx context.Context, stage fetch.Stage) error {
	if !stage.Has("pdq.zip") {
		err := a.client.GoAnywhereDownload(ctx, a.PortalURL, a.PDQHint, stage.Path("pdq.zip"))
		if err != nil {
			return err
		}
	}
	members, err := stage.Unzip("pdq.zip")
	if err != nil {
		return err
	}
	logg.Info("source %s: extracted %d members from pdq.zip", a.PluginTypeID(), len(members))

	if !stage.Has("p5.txt") {
		err := a.client.GoAnywhereDownload(ctx, a.PortalURL, a.P5Hint, stage.Path("p5.txt"))
		if err != nil {
			return err
		}
	}
	return nil
}

// Ingest implements the core.SourceAdapter interface.
func (a *txRRCAdapter) Ingest(ctx context.Context, stage fetch.Stage, sink core.RecordSink) (core.IngestStats, error) {
	var stats core.IngestStats
	err := a.ingestP5Operators(stage, sink, &stats)
	if err != nil {
		return stats, err
	}
	err = a.ingestPDQ(ctx, stage, sink, &stats)
	return stats, err
}

// The P-5 organization file layout, per the record layout manual.
var p5Layout = parse.FixedWidthLayout{
	Fields: []parse.FixedWidthField{
		{Name: "operator_number", Start: 0, End: 6},
		{Name: "operator_name", Start: 6, End: 56},
		{Name: "hq_city", Start: 56, End: 76},
		{Name: "hq_state", Start: 76, End: 78},
	},
}

func (a *txRRCAdapter) ingestP5Operators(stage fetch.Stage, sink core.RecordSink, stats *core.IngestStats) error {
	file, err := os.Open(stage.Path("p5.txt"))
	if err != nil {
		return err
	}
	defer file.Close()

	reader := parse.NewFixedWidthReader(file, p5Layout)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		number := record["operator_number"]
		rawName := record["operator_name"]
		if number == "" || rawName == "" {
			stats.ParseErrors++
			continue
		}
		op := core.Operator{
			ID:        util.OperatorIDFromNumber(a.PluginTypeID(), number),
			LegalName: util.CanonicalName(rawName),
			RawNames:  []string{rawName},
		}
		if state := record["hq_state"]; state != "" {
			op.HQState = &state
		}
		if city := record["hq_city"]; city != "" {
			city = util.CanonicalName(city)
			op.HQCity = &city
		}
		err = sink.AddOperator(op)
		if err != nil {
			return err
		}
	}
	stats.ParseErrors += reader.ShortLines
	return nil
}

// Column positions of the PDQ dump, per the DSV layout documentation. One row
// is one (lease, month) observation carrying the well master fields
// redundantly, so the asset upsert is repeated per month and deduplicated by
// the sink.
const (
	pdqColAPI = iota
	pdqColLeaseName
	pdqColCountyCode
	pdqColOperatorNumber
	pdqColOperatorName
	pdqColWellTypeCode
	pdqColStatusCode
	pdqColSpudDate
	pdqColDepthFt
	pdqColLatitude
	pdqColLongitude
	pdqColProdMonth
	pdqColOilBBL
	pdqColGasMCF
	pdqColFieldCount // number of columns, not a column
)

var txStatusTable = map[string]core.AssetStatus{
	"P":  core.StatusActive, // producing
	"DR": core.StatusActive, // drilling
	"PA": core.StatusActive, // permitted
	"IJ": core.StatusActive, // injecting
	"SI": core.StatusShutIn,
	"TA": core.StatusShutIn, // temporarily abandoned
}

// countyNamesTX maps the RRC county codes that appear in the PDQ dump. An
// unlisted code becomes "County <code>" so that rows never get lost over a
// missing table entry.
var countyNamesTX = map[string]string{
	"003": "Andrews",
	"041": "Brazos",
	"103": "Crane",
	"135": "Ector",
	"165": "Gaines",
	"179": "Gray",
	"227": "Howard",
	"255": "Karnes",
	"283": "La Salle",
	"301": "Loving",
	"317": "Martin",
	"329": "Midland",
	"383": "Reagan",
	"389": "Reeves",
	"461": "Upton",
	"475": "Ward",
	"495": "Winkler",
	"503": "Young",
}

var basinsTX = map[string]string{
	"ANDREWS":  "Permian",
	"CRANE":    "Permian",
	"ECTOR":    "Permian",
	"GAINES":   "Permian",
	"HOWARD":   "Permian",
	"LOVING":   "Permian",
	"MARTIN":   "Permian",
	"MIDLAND":  "Permian",
	"REAGAN":   "Permian",
	"REEVES":   "Permian",
	"UPTON":    "Permian",
	"WARD":     "Permian",
	"WINKLER":  "Permian",
	"KARNES":   "Eagle Ford",
	"LA SALLE": "Eagle Ford",
	"GRAY":     "Anadarko",
	"BRAZOS":   "Gulf Coast",
	"YOUNG":    "Fort Worth",
}

func (a *txRRCAdapter) countyName(code string) string {
	if name, exists := countyNamesTX[code]; exists {
		return name
	}
	return "County " + code
}

func (a *txRRCAdapter) basinFor(county string, longitude float64) *string {
	return basinFromCounty(basinsTX, county, func() string {
		// everything west of the Midland line that the county table missed is
		// still Permian for our purposes
		if longitude != 0 && longitude < -101 {
			return "Permian"
		}
		return ""
	})
}

func (a *txRRCAdapter) ingestPDQ(ctx context.Context, stage fetch.Stage, sink core.RecordSink, stats *core.IngestStats) error {
	path, err := stage.FirstMatching("*.dsv")
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := parse.NewPipeReader(file)
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
		if len(record) < pdqColFieldCount {
			stats.ParseErrors++
			continue
		}
		err = a.mapPDQRecord(record, sink, stats)
		if err != nil {
			return err
		}
	}
}

func (a *txRRCAdapter) mapPDQRecord(record []string, sink core.RecordSink, stats *core.IngestStats) error {
	rawAPI := record[pdqColAPI]
	if strings.TrimSpace(rawAPI) == "" {
		stats.ParseErrors++
		return nil
	}
	assetID := util.AssetIDFromAPI(a.PluginTypeID(), rawAPI, txAPIWidth)

	var operatorID *string
	if number := strings.TrimSpace(record[pdqColOperatorNumber]); number != "" {
		id := util.OperatorIDFromNumber(a.PluginTypeID(), number)
		operatorID = &id
		rawName := record[pdqColOperatorName]
		if rawName != "" {
			err := sink.AddOperator(core.Operator{
				ID:        id,
				LegalName: util.CanonicalName(rawName),
				RawNames:  []string{rawName},
			})
			if err != nil {
				return err
			}
		}
	}

	assetType := core.AssetTypeOil
	if code := strings.ToUpper(strings.TrimSpace(record[pdqColWellTypeCode])); code == "G" || code == "CBM" || code == "C" {
		// gas, coalbed methane and condensate wells all count as gas
		assetType = core.AssetTypeGas
	}
	county := a.countyName(record[pdqColCountyCode])
	var latitude, longitude float64
	if lat := parseFloat(record[pdqColLatitude]); lat != nil {
		latitude = *lat
	}
	if lon := record[pdqColLongitude]; strings.TrimSpace(lon) != "" {
		if parsed := parseNegFloat(lon); parsed != nil {
			longitude = *parsed
		}
	}

	asset := core.Asset{
		ID:         assetID,
		Type:       assetType,
		Name:       util.CanonicalName(record[pdqColLeaseName]),
		State:      "TX",
		County:     county,
		Latitude:   latitude,
		Longitude:  longitude,
		Basin:      a.basinFor(county, longitude),
		OperatorID: operatorID,
		Status:     mapStatus(txStatusTable, record[pdqColStatusCode]),
		SpudDate:   util.ParseLooseDate(record[pdqColSpudDate]),
		DepthFt:    parseFloat(record[pdqColDepthFt]),
		Commodity:  commodityFor(assetType),
	}
	err := sink.AddAsset(asset)
	if err != nil {
		return err
	}

	month := util.ParseLooseDate(record[pdqColProdMonth])
	if month == nil {
		stats.SkippedRows++
		return nil
	}
	oil := parseFloat(record[pdqColOilBBL])
	gas := parseFloat(record[pdqColGasMCF])
	if isZero(oil) && isZero(gas) {
		// the PDQ dump restates zero months forever for plugged leases
		stats.SkippedRows++
		return nil
	}
	return sink.AddProduction(core.ProductionRecord{
		AssetID: assetID,
		Month:   util.MonthStart(*month),
		OilBBL:  oil,
		GasMCF:  gas,
	})
}

// parseNegFloat is parseFloat without the negative-value rejection; western
// longitudes are all negative.
func parseNegFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value := parseFloat(strings.TrimPrefix(raw, "-"))
	if value == nil {
		return nil
	}
	if strings.HasPrefix(raw, "-") {
		negated := -*value
		return &negated
	}
	return value
}
