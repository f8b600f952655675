// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"
)

func testClient() (*Client, *[]time.Duration) {
	var sleeps []time.Duration
	client := NewClient(3, 2*time.Second)
	client.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return client, &sleeps
}

func TestClientRetriesServerErrors(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	client, sleeps := testClient()
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	resp.Body.Close()

	assert.DeepEqual(t, "request count", requestCount, 3)
	// linear back-off: base×1, base×2
	assert.DeepEqual(t, "sleeps", *sleeps, []time.Duration{2 * time.Second, 4 * time.Second})
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := testClient()
	_, err := client.Get(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	assert.DeepEqual(t, "request count", requestCount, 3)
}

func TestClientSleepsOnRateLimit(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, sleeps := testClient()
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	resp.Body.Close()
	assert.DeepEqual(t, "sleeps", *sleeps, []time.Duration{60 * time.Second})
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := testClient()
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	resp.Body.Close()
	assert.DeepEqual(t, "status", resp.StatusCode, http.StatusNotFound)
	assert.DeepEqual(t, "request count", requestCount, 1)
}

func TestDownloadFileOutlivesSmallRequestTimeout(t *testing.T) {
	// the body of a bulk download keeps streaming long past the small
	// request timeout; only the request context may cut it off
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("api,oil,gas\n"))
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		w.Write([]byte("1,2,3\n"))
	}))
	defer server.Close()

	client, _ := testClient()
	client.HTTP.Timeout = 50 * time.Millisecond
	if client.BulkHTTP.Timeout != 0 {
		t.Fatal("the bulk client must not carry an overall timeout")
	}

	destPath := filepath.Join(t.TempDir(), "data.csv")
	err := client.DownloadFile(context.Background(), server.URL, destPath)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	buf, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "file contents", string(buf), "api,oil,gas\n1,2,3\n")
}

func TestCheckIntegrityDeletesHTMLErrorPages(t *testing.T) {
	dir := t.TempDir()

	htmlPath := filepath.Join(dir, "error.csv")
	err := os.WriteFile(htmlPath, []byte("<html><body>Service Unavailable</body></html>"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	if CheckIntegrity(htmlPath) == nil {
		t.Error("expected integrity failure for a small HTML file")
	}
	if _, err := os.Stat(htmlPath); !os.IsNotExist(err) {
		t.Error("the offending file must be deleted")
	}

	dataPath := filepath.Join(dir, "data.csv")
	err = os.WriteFile(dataPath, []byte("api,oil,gas\n1,2,3\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckIntegrity(dataPath); err != nil {
		t.Errorf("small non-HTML files must pass: %s", err.Error())
	}
}
