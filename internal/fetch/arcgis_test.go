// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"
)

func arcgisTestServer(t *testing.T, pages [][]ArcGISFeature, exceededOnPage map[int]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("resultOffset"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("resultRecordCount"))
		pageIdx := offset / pageSize
		response := map[string]any{"features": []ArcGISFeature{}}
		if pageIdx < len(pages) {
			response["features"] = pages[pageIdx]
			response["exceededTransferLimit"] = exceededOnPage[pageIdx]
		}
		err := json.NewEncoder(w).Encode(response)
		if err != nil {
			t.Error(err)
		}
	}))
}

func makeFeatures(count int) []ArcGISFeature {
	features := make([]ArcGISFeature, count)
	for idx := range features {
		features[idx] = ArcGISFeature{Attributes: map[string]any{"OBJECTID": float64(idx)}}
	}
	return features
}

func queryAll(t *testing.T, server *httptest.Server, pageSize int) int {
	t.Helper()
	client, _ := testClient()
	arcgis := ArcGISClient{Client: client, BaseURL: server.URL, PageSize: pageSize}
	total := 0
	err := arcgis.Query(context.Background(), "", "OBJECTID", func(ArcGISFeature) error {
		total++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected query error: %s", err.Error())
	}
	return total
}

func TestArcGISPaginationStopsOnShortPage(t *testing.T) {
	server := arcgisTestServer(t, [][]ArcGISFeature{makeFeatures(2), makeFeatures(1)}, nil)
	defer server.Close()
	assert.DeepEqual(t, "total features", queryAll(t, server, 2), 3)
}

func TestArcGISPaginationContinuesOnTransferLimit(t *testing.T) {
	// a short page with exceededTransferLimit=true means "keep going"
	server := arcgisTestServer(t,
		[][]ArcGISFeature{makeFeatures(1), makeFeatures(2), makeFeatures(0)},
		map[int]bool{0: true, 1: true})
	defer server.Close()
	assert.DeepEqual(t, "total features", queryAll(t, server, 2), 3)
}

func TestArcGISInBandErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": {"code": 500, "message": "Invalid query"}}`)
	}))
	defer server.Close()

	client, _ := testClient()
	arcgis := ArcGISClient{Client: client, BaseURL: server.URL, PageSize: 2, Pause: time.Second}
	err := arcgis.Query(context.Background(), "", "", func(ArcGISFeature) error { return nil })
	if err == nil {
		t.Fatal("expected the in-band server error to surface")
	}
}

func TestArcGISFeatureAccessors(t *testing.T) {
	feature := ArcGISFeature{Attributes: map[string]any{
		"Api_Number":  "3500112345",
		"TOTAL_DEPTH": float64(8901),
		"WELL_NAME":   "  SMITH 1-H  ",
		"EMPTY":       "",
	}}

	assert.DeepEqual(t, "Str with alternate spelling", feature.Str("API_NUMBER", "API"), "3500112345")
	assert.DeepEqual(t, "Str trims", feature.Str("well_name"), "SMITH 1-H")
	assert.DeepEqual(t, "Str miss", feature.Str("EMPTY", "NOPE"), "")

	depth := feature.Float("total_depth")
	if depth == nil || *depth != 8901 {
		t.Errorf("expected depth 8901, got %v", depth)
	}
	if feature.Float("NOPE") != nil {
		t.Error("missing attribute must yield nil")
	}
}
