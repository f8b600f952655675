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

	"github.com/sapcc/go-bits/assert"
)

// a tiny fake of the upstream API: /auth/login mints tokens, /wells pages
// records, and tokens can be invalidated to provoke re-authentication
type fakeJSONAPI struct {
	loginCount   int
	currentToken string
	records      []string
}

func (f *fakeJSONAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		err := json.NewDecoder(r.Body).Decode(&creds)
		if err != nil || creds["email"] != "ingest@example.com" || creds["password"] != "swordfish" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		f.loginCount++
		f.currentToken = fmt.Sprintf("token-%d", f.loginCount)
		fmt.Fprintf(w, `{"token": %q, "refreshToken": "r"}`, f.currentToken)
	})
	mux.HandleFunc("/wells", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.currentToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := offset + limit
		if end > len(f.records) {
			end = len(f.records)
		}
		page := []string{}
		if offset < len(f.records) {
			page = f.records[offset:end]
		}
		err := json.NewEncoder(w).Encode(page)
		if err != nil {
			panic(err)
		}
	})
	return mux
}

func TestJSONAPIPagination(t *testing.T) {
	fake := &fakeJSONAPI{records: []string{"a", "b", "c", "d", "e"}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, _ := testClient()
	api := JSONAPIClient{
		Client:   client,
		BaseURL:  server.URL,
		Email:    "ingest@example.com",
		Password: "swordfish",
		PageSize: 2,
	}

	var seen []string
	err := api.GetPaged(context.Background(), "/wells", nil, func(record json.RawMessage) error {
		var s string
		must(t, json.Unmarshal(record, &s))
		seen = append(seen, s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	assert.DeepEqual(t, "records", seen, []string{"a", "b", "c", "d", "e"})
	assert.DeepEqual(t, "login count", fake.loginCount, 1)
}

func TestJSONAPIReauthenticatesOnce(t *testing.T) {
	fake := &fakeJSONAPI{records: []string{"a"}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, _ := testClient()
	api := JSONAPIClient{
		Client:   client,
		BaseURL:  server.URL,
		Email:    "ingest@example.com",
		Password: "swordfish",
		PageSize: 2,
	}

	// an expired token must trigger exactly one re-login
	must(t, api.Login(context.Background()))
	fake.currentToken = "expired"
	fake.loginCount = 1

	count := 0
	err := api.GetPaged(context.Background(), "/wells", nil, func(json.RawMessage) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	assert.DeepEqual(t, "records seen", count, 1)
	assert.DeepEqual(t, "login count", fake.loginCount, 2)
}

func TestJSONAPIBadCredentials(t *testing.T) {
	fake := &fakeJSONAPI{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	client, _ := testClient()
	api := JSONAPIClient{Client: client, BaseURL: server.URL, Email: "wrong@example.com", Password: "nope"}
	err := api.Login(context.Background())
	if err == nil {
		t.Fatal("expected login to fail")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
