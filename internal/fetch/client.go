// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch contains the download machinery shared by all source
// adapters: the retrying HTTP client, dated staging directories, and the
// protocol helpers for ArcGIS FeatureServers, authenticated JSON APIs,
// ASP.NET WebForms pages and GoAnywhere MFT portals.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sapcc/go-bits/logg"
)

const (
	// SmallRequestTimeout applies to paginated queries and page fetches.
	SmallRequestTimeout = 60 * time.Second
	// BulkDownloadTimeout applies to multi-GB file downloads.
	BulkDownloadTimeout = 30 * time.Minute
	// rateLimitDelay is how long to sleep after an HTTP 429 before retrying.
	rateLimitDelay = 60 * time.Second
)

// Client is a retrying HTTP client. A request that fails transiently (5xx,
// connection error) is retried up to MaxAttempts times with a linear back-off
// of BaseDelay×attempt; HTTP 429 sleeps for a minute instead. Persistent
// failure is returned to the caller, which marks the source as failed without
// aborting the other sources.
type Client struct {
	HTTP *http.Client
	// BulkHTTP carries no overall timeout: http.Client.Timeout caps the
	// whole request including the body read, which a multi-GB dump cannot
	// finish within any per-request cap. Bulk downloads are bounded by the
	// request context instead.
	BulkHTTP    *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	UserAgent   string
	// Usually time.Sleep, but can be changed inside unit tests.
	Sleep func(time.Duration)
}

// NewClient creates a Client with the given retry policy.
func NewClient(maxAttempts int, baseDelay time.Duration) *Client {
	return &Client{
		HTTP:        &http.Client{Timeout: SmallRequestTimeout},
		BulkHTTP:    &http.Client{},
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		UserAgent:   "wellhead/1.0",
		Sleep:       time.Sleep,
	}
}

// Do executes the request with retries. Responses with status < 500 (except
// 429) are returned as-is; classifying e.g. a 401 is the caller's business.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.doWith(c.HTTP, req)
}

func (c *Client) doWith(httpClient *http.Client, req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	var lastErr error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = fmt.Errorf("GET %s: rate limited (429)", req.URL)
			logg.Info("rate limited by %s, sleeping %s", req.URL.Host, rateLimitDelay)
			c.Sleep(rateLimitDelay)
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("GET %s: server error (%d)", req.URL, resp.StatusCode)
		default:
			return resp, nil
		}

		if attempt < c.MaxAttempts {
			delay := c.BaseDelay * time.Duration(attempt)
			logg.Debug("request to %s failed (attempt %d/%d), retrying in %s: %s",
				req.URL.Host, attempt, c.MaxAttempts, delay, lastErr.Error())
			c.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.MaxAttempts, lastErr)
}

// Get issues a retried GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// DownloadFile streams a GET response into destPath, bounded by the bulk
// timeout via the request context, and runs the integrity check on the result.
func (c *Client) DownloadFile(ctx context.Context, url, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, BulkDownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.doWith(c.BulkHTTP, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return writeAndCheck(destPath, resp.Body)
}

func writeAndCheck(destPath string, source io.Reader) error {
	file, err := os.Create(destPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(file, source)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return err
	}
	return CheckIntegrity(destPath)
}

// CheckIntegrity guards against HTML error pages masquerading as data files:
// a download smaller than 1 KiB that starts with an HTML marker is deleted
// and reported as a failed download.
func CheckIntegrity(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() >= 1024 {
		return nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	head := strings.ToLower(strings.TrimSpace(string(buf)))
	if strings.HasPrefix(head, "<html") || strings.HasPrefix(head, "<!doctype") {
		os.Remove(path)
		return fmt.Errorf("download %s is an HTML error page, not data", path)
	}
	return nil
}
