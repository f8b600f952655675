// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package sources

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sapcc/go-bits/logg"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/fetch"
	"github.com/petrodata/wellhead/internal/util"
)

func init() {
	core.SourceAdapterRegistry.Add(func() core.SourceAdapter { return &laLDNRAdapter{} })
}

// laLDNRAdapter scrapes the Louisiana Department of Natural Resources well
// search, an ASP.NET WebForms page queried once per parish. The result tables
// expose only serial number, well name, operator and status; coordinates stay
// at (0,0) so that a richer source for the same well can fill them in later
// through the loader's coordinate rule.
type laLDNRAdapter struct {
	SearchURL string   `yaml:"search_url"`
	Parishes  []string `yaml:"parishes"`

	client *fetch.Client
}

// PluginTypeID implements the core.SourceAdapter interface.
func (a *laLDNRAdapter) PluginTypeID() string { return "la_ldnr" }

// Init implements the core.SourceAdapter interface.
func (a *laLDNRAdapter) Init(client *fetch.Client, cfg core.SourceConfiguration) error {
	a.client = client
	if a.SearchURL == "" {
		return fmt.Errorf("source %s: missing params.search_url", a.PluginTypeID())
	}
	if len(a.Parishes) == 0 {
		return fmt.Errorf("source %s: missing params.parishes", a.PluginTypeID())
	}
	return nil
}

// SourceURL implements the core.SourceAdapter interface.
func (a *laLDNRAdapter) SourceURL() string { return a.SearchURL }

// Download implements the core.SourceAdapter interface. One search POST per
// parish, each staged as an HTML file.
func (a *laLDNRAdapter) Download(ctx context.Context, stage fetch.Stage) error {
	session, err := fetch.NewFormSession(a.client)
	if err != nil {
		return err
	}
	page, err := session.FetchPage(ctx, a.SearchURL)
	if err != nil {
		return err
	}
	viewState, err := fetch.ExtractViewState(page)
	if err != nil {
		return err
	}

	for _, parish := range a.Parishes {
		fileName := "wells_" + strings.ToLower(parish) + ".html"
		if stage.Has(fileName) {
			continue
		}
		result, err := session.PostBack(ctx, a.SearchURL, viewState, map[string][]string{
			"ctl00$MainContent$ddlParish": {strings.ToUpper(parish)},
			"ctl00$MainContent$btnSearch": {"Search"},
		})
		if err != nil {
			return fmt.Errorf("while searching parish %s: %w", parish, err)
		}
		err = os.WriteFile(stage.Path(fileName), []byte(result), 0644)
		if err != nil {
			return err
		}
		// the search page is slow and fragile; do not hammer it
		a.client.Sleep(2 * time.Second)
	}
	return nil
}

// one result row: serial number, well name, operator, status code
var laWellRowRx = regexp.MustCompile(
	`(?s)<tr[^>]*class="wellRow[^"]*"[^>]*>\s*` +
		`<td[^>]*>\s*(\d+)\s*</td>\s*` +
		`<td[^>]*>([^<]*)</td>\s*` +
		`<td[^>]*>([^<]*)</td>\s*` +
		`<td[^>]*>([^<]*)</td>`)

var laStatusTable = map[string]core.AssetStatus{
	"10": core.StatusActive, // producing
	"11": core.StatusActive, // drilling
	"12": core.StatusActive, // permitted
	"20": core.StatusShutIn,
	"21": core.StatusShutIn, // temporarily abandoned
}

// Ingest implements the core.SourceAdapter interface.
func (a *laLDNRAdapter) Ingest(ctx context.Context, stage fetch.Stage, sink core.RecordSink) (core.IngestStats, error) {
	var stats core.IngestStats
	for _, parish := range a.Parishes {
		fileName := "wells_" + strings.ToLower(parish) + ".html"
		buf, err := os.ReadFile(stage.Path(fileName))
		if err != nil {
			return stats, err
		}
		count, err := a.ingestParishPage(parish, string(buf), sink, &stats)
		if err != nil {
			return stats, err
		}
		logg.Info("source %s: %d wells in parish %s", a.PluginTypeID(), count, parish)
	}
	return stats, nil
}

func (a *laLDNRAdapter) ingestParishPage(parish, page string, sink core.RecordSink, stats *core.IngestStats) (int, error) {
	rows := laWellRowRx.FindAllStringSubmatch(page, -1)
	for _, row := range rows {
		serial := row[1]
		rawName := strings.TrimSpace(row[2])
		rawOperator := strings.TrimSpace(row[3])
		statusCode := strings.TrimSpace(row[4])
		if rawName == "" {
			stats.ParseErrors++
			continue
		}

		var operatorID *string
		if rawOperator != "" {
			id := util.OperatorIDFromName(a.PluginTypeID(), rawOperator)
			operatorID = &id
			err := sink.AddOperator(core.Operator{
				ID:        id,
				LegalName: util.CanonicalName(rawOperator),
				RawNames:  []string{rawOperator},
			})
			if err != nil {
				return 0, err
			}
		}

		// the search results carry no API number; the state serial number is
		// the stable natural key
		err := sink.AddAsset(core.Asset{
			ID:         util.AssetIDFromKey(a.PluginTypeID(), serial),
			Type:       core.AssetTypeOil,
			Name:       util.CanonicalName(rawName),
			State:      "LA",
			County:     util.CanonicalName(parish),
			OperatorID: operatorID,
			Status:     mapStatus(laStatusTable, statusCode),
			Commodity:  commodityFor(core.AssetTypeOil),
		})
		if err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}
