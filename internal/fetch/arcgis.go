// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sapcc/go-bits/logg"
)

// ArcGISClient pages through an ArcGIS FeatureServer layer's query endpoint.
type ArcGISClient struct {
	Client  *Client
	BaseURL string // ".../FeatureServer/0"
	// PageSize is the resultRecordCount per request (default 1000).
	PageSize int
	// Pause is slept between page requests; FeatureServers run by state
	// agencies are treated politely.
	Pause time.Duration
}

// ArcGISFeature is one feature from a query response. Attribute names drift
// between servers, so all lookups are case-insensitive and accept alternate
// spellings.
type ArcGISFeature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *ArcGISPoint   `json:"geometry"`
}

// ArcGISPoint is a point geometry in the layer's spatial reference.
type ArcGISPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type arcgisQueryResponse struct {
	Features              []ArcGISFeature `json:"features"`
	ExceededTransferLimit bool            `json:"exceededTransferLimit"`
	Error                 *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Query pages through all features matching the given where clause and calls
// action for each one. Pagination stops exactly when a page comes back
// shorter than the page size AND the server did not set exceededTransferLimit
// (some servers return short pages while still having more data). A failed
// page request is retried from the same offset by the underlying client.
func (c *ArcGISClient) Query(ctx context.Context, where, orderBy string, action func(ArcGISFeature) error) error {
	pageSize := c.PageSize
	if pageSize == 0 {
		pageSize = 1000
	}
	if where == "" {
		where = "1=1"
	}

	for offset := 0; ; offset += pageSize {
		query := url.Values{
			"where":             {where},
			"outFields":         {"*"},
			"f":                 {"json"},
			"returnGeometry":    {"true"},
			"outSR":             {"4326"},
			"resultOffset":      {strconv.Itoa(offset)},
			"resultRecordCount": {strconv.Itoa(pageSize)},
			"orderByFields":     {orderBy},
		}
		page, err := c.fetchPage(ctx, query)
		if err != nil {
			return fmt.Errorf("while querying %s at offset %d: %w", c.BaseURL, offset, err)
		}

		for _, feature := range page.Features {
			err := action(feature)
			if err != nil {
				return err
			}
		}

		if len(page.Features) < pageSize && !page.ExceededTransferLimit {
			return nil
		}
		if c.Pause > 0 {
			c.Client.Sleep(c.Pause)
		}
	}
}

func (c *ArcGISClient) fetchPage(ctx context.Context, query url.Values) (arcgisQueryResponse, error) {
	resp, err := c.Client.Get(ctx, strings.TrimSuffix(c.BaseURL, "/")+"/query?"+query.Encode())
	if err != nil {
		return arcgisQueryResponse{}, err
	}
	defer resp.Body.Close()

	var page arcgisQueryResponse
	err = json.NewDecoder(resp.Body).Decode(&page)
	if err != nil {
		return arcgisQueryResponse{}, err
	}
	if page.Error != nil {
		// FeatureServers like to report errors inside HTTP 200 responses
		return arcgisQueryResponse{}, fmt.Errorf("server reported error %d: %s", page.Error.Code, page.Error.Message)
	}
	return page, nil
}

// Str returns the first non-empty attribute under any of the given names,
// compared case-insensitively.
func (f ArcGISFeature) Str(names ...string) string {
	for _, name := range names {
		for key, value := range f.Attributes {
			if !strings.EqualFold(key, name) || value == nil {
				continue
			}
			switch v := value.(type) {
			case string:
				if strings.TrimSpace(v) != "" {
					return strings.TrimSpace(v)
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return ""
}

// Float returns the first numeric attribute under any of the given names, or
// nil. Numbers sent as strings are accepted; schemas drift.
func (f ArcGISFeature) Float(names ...string) *float64 {
	for _, name := range names {
		for key, value := range f.Attributes {
			if !strings.EqualFold(key, name) || value == nil {
				continue
			}
			switch v := value.(type) {
			case float64:
				return &v
			case string:
				parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err == nil {
					return &parsed
				}
				logg.Debug("attribute %s has non-numeric value %q", key, v)
			}
		}
	}
	return nil
}
