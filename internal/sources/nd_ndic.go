// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sapcc/go-bits/logg"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/fetch"
	"github.com/petrodata/wellhead/internal/parse"
	"github.com/petrodata/wellhead/internal/util"
)

func init() {
	core.SourceAdapterRegistry.Add(func() core.SourceAdapter { return &ndNDICAdapter{} })
}

// ndNDICAdapter ingests the North Dakota Industrial Commission's monthly
// production files. The commission publishes one CSV per month (converted
// from their XLSX workbook) at a templated URL; each row restates the well
// master fields, so this one feed yields assets, operators and production
// alike. Everything in the state is Williston basin.
type ndNDICAdapter struct {
	// URLTemplate contains a %s that is replaced by the month in YYYY-MM form.
	URLTemplate string `yaml:"url_template"`
	MonthsBack  int    `yaml:"months_back"`

	client *fetch.Client
}

const ndAPIWidth = 10

// PluginTypeID implements the core.SourceAdapter interface.
func (a *ndNDICAdapter) PluginTypeID() string { return "nd_ndic" }

// Init implements the core.SourceAdapter interface.
func (a *ndNDICAdapter) Init(client *fetch.Client, cfg core.SourceConfiguration) error {
	a.client = client
	if a.URLTemplate == "" {
		return fmt.Errorf("source %s: missing params.url_template", a.PluginTypeID())
	}
	if !strings.Contains(a.URLTemplate, "%s") {
		return fmt.Errorf("source %s: params.url_template must contain a %%s month placeholder", a.PluginTypeID())
	}
	if a.MonthsBack == 0 {
		a.MonthsBack = 3
	}
	return nil
}

// SourceURL implements the core.SourceAdapter interface.
func (a *ndNDICAdapter) SourceURL() string { return a.URLTemplate }

// Download implements the core.SourceAdapter interface. The most recent month
// is usually published with a few weeks of delay, so a missing month is
// logged and skipped rather than failing the source.
func (a *ndNDICAdapter) Download(ctx context.Context, stage fetch.Stage) error {
	downloaded := 0
	for offset := 1; offset <= a.MonthsBack; offset++ {
		month := time.Now().UTC().AddDate(0, -offset, 0).Format("2006-01")
		fileName := "production_" + month + ".csv"
		if stage.Has(fileName) {
			downloaded++
			continue
		}
		err := a.client.DownloadFile(ctx, fmt.Sprintf(a.URLTemplate, month), stage.Path(fileName))
		if err != nil {
			logg.Info("source %s: month %s not available yet: %s", a.PluginTypeID(), month, err.Error())
			continue
		}
		downloaded++
	}
	if downloaded == 0 {
		return fmt.Errorf("source %s: none of the last %d monthly files could be downloaded", a.PluginTypeID(), a.MonthsBack)
	}
	return nil
}

// Ingest implements the core.SourceAdapter interface.
func (a *ndNDICAdapter) Ingest(ctx context.Context, stage fetch.Stage, sink core.RecordSink) (core.IngestStats, error) {
	var stats core.IngestStats

	entries, err := os.ReadDir(stage.Dir)
	if err != nil {
		return stats, err
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "production_") && strings.HasSuffix(name, ".csv") {
			files = append(files, name)
		}
	}
	if len(files) == 0 {
		return stats, fmt.Errorf("no staged monthly files for source %s in %s", a.PluginTypeID(), stage.Dir)
	}
	sort.Strings(files)

	for _, name := range files {
		err := a.ingestMonthlyFile(ctx, stage.Path(name), sink, &stats)
		if err != nil {
			return stats, fmt.Errorf("while ingesting %s: %w", name, err)
		}
	}
	return stats, nil
}

var ndStatusTable = map[string]core.AssetStatus{
	"A":  core.StatusActive,
	"AL": core.StatusActive, // active, on confidential list
	"DR": core.StatusActive,
	"IA": core.StatusInactive,
	"SI": core.StatusShutIn,
	"TA": core.StatusShutIn,
}

func (a *ndNDICAdapter) ingestMonthlyFile(ctx context.Context, path string, sink core.RecordSink, stats *core.IngestStats) error {
	file, err := os.Open(path)
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
	apiCol, hasAPI := findColumn(cols, "apino", "api_no", "api")
	monthCol, hasMonth := findColumn(cols, "reportdate", "report_date", "month")
	if !hasAPI || !hasMonth {
		return fmt.Errorf("header has no APINo/ReportDate column: %v", header)
	}
	companyCol, _ := findColumn(cols, "company", "operator")
	wellNameCol, _ := findColumn(cols, "wellname", "well_name")
	countyCol, _ := findColumn(cols, "county")
	statusCol, _ := findColumn(cols, "wellstatus", "status")
	oilCol, _ := findColumn(cols, "oil", "bbls_oil")
	gasCol, _ := findColumn(cols, "gas", "mcf_prod")
	daysCol, _ := findColumn(cols, "days", "days_prod")

	basin := "Williston"
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
		rawAPI := columnStr(record, apiCol)
		month := util.ParseLooseDate(columnStr(record, monthCol))
		if rawAPI == "" || month == nil {
			stats.ParseErrors++
			continue
		}
		assetID := util.AssetIDFromAPI(a.PluginTypeID(), rawAPI, ndAPIWidth)

		var operatorID *string
		if rawOperator := columnStr(record, companyCol); rawOperator != "" {
			id := util.OperatorIDFromName(a.PluginTypeID(), rawOperator)
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

		// the monthly file does not carry a well type; gas volumes in the
		// Williston are associated gas, so every well counts as oil
		err = sink.AddAsset(core.Asset{
			ID:         assetID,
			Type:       core.AssetTypeOil,
			Name:       util.CanonicalName(columnStr(record, wellNameCol)),
			State:      "ND",
			County:     util.CanonicalName(columnStr(record, countyCol)),
			Basin:      &basin,
			OperatorID: operatorID,
			Status:     mapStatus(ndStatusTable, columnStr(record, statusCol)),
			Commodity:  commodityFor(core.AssetTypeOil),
		})
		if err != nil {
			return err
		}

		oil := columnFloat(record, oilCol)
		gas := columnFloat(record, gasCol)
		if oil == nil && gas == nil {
			stats.SkippedRows++
			continue
		}
		monthStart := util.MonthStart(*month)
		err = sink.AddProduction(core.ProductionRecord{
			AssetID:      assetID,
			Month:        monthStart,
			OilBBL:       oil,
			GasMCF:       gas,
			DowntimeDays: downtimeFromProducingDays(monthStart, columnInt(record, daysCol)),
		})
		if err != nil {
			return err
		}
	}
}

// The feed reports producing days; the canonical field is downtime days.
func downtimeFromProducingDays(monthStart time.Time, producingDays *int) *int {
	if producingDays == nil {
		return nil
	}
	daysInMonth := monthStart.AddDate(0, 1, -1).Day()
	downtime := daysInMonth - *producingDays
	if downtime < 0 {
		downtime = 0
	}
	return &downtime
}
