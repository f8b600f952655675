// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sapcc/go-bits/logg"
)

// GoAnywhere MFT portals (used by the Texas RRC for bulk dumps) need a
// three-step dance: fetch the portal page for a session cookie, ViewState and
// file row key; POST an ajax request that "selects" the file row server-side;
// then POST the download form to receive the file stream.

var (
	mftViewStateRx = regexp.MustCompile(`name="javax\.faces\.ViewState"[^>]*value="([^"]*)"`)
	// each downloadable file is a table row carrying a data-rk row key
	mftRowKeyRx = regexp.MustCompile(`data-rk="([^"]+)"[^>]*>[^<]*<[^>]*>([^<]+)`)
)

// GoAnywhereDownload fetches the file whose visible name contains
// fileNameHint from an MFT portal and stores it at destPath.
func (c *Client) GoAnywhereDownload(ctx context.Context, portalURL, fileNameHint, destPath string) error {
	session, err := NewFormSession(c)
	if err != nil {
		return err
	}

	// step 1: portal page gives us the session cookie, ViewState and row keys
	page, err := session.FetchPage(ctx, portalURL)
	if err != nil {
		return fmt.Errorf("while fetching MFT portal page: %w", err)
	}
	viewState := mftViewStateRx.FindStringSubmatch(page)
	if viewState == nil {
		return fmt.Errorf("MFT portal page at %s has no JSF ViewState", portalURL)
	}
	rowKey, err := findMFTRowKey(page, fileNameHint)
	if err != nil {
		return err
	}
	logg.Debug("MFT row key for %q is %s", fileNameHint, rowKey)

	// step 2: ajax "select row" stages the file server-side
	selectForm := url.Values{
		"javax.faces.partial.ajax": {"true"},
		"javax.faces.source":       {"fileTable"},
		"javax.faces.ViewState":    {viewState[1]},
		"fileTable_instantSelectedRowKey": {rowKey},
		"fileTable_selection":             {rowKey},
	}
	_, err = session.postRaw(ctx, portalURL, selectForm)
	if err != nil {
		return fmt.Errorf("while selecting MFT file row: %w", err)
	}

	// step 3: the download form streams the file; this is a bulk download,
	// so it runs on the untimed client with the bulk deadline
	downloadForm := url.Values{
		"downloadForm":          {"downloadForm"},
		"downloadForm:download": {"downloadForm:download"},
		"javax.faces.ViewState": {viewState[1]},
	}
	dlCtx, cancel := context.WithTimeout(ctx, BulkDownloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(dlCtx, http.MethodPost, portalURL, strings.NewReader(downloadForm.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := session.doBulk(req)
	if err != nil {
		return fmt.Errorf("while requesting MFT file stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("MFT download: unexpected status %d", resp.StatusCode)
	}
	return writeAndCheck(destPath, resp.Body)
}

func findMFTRowKey(page, fileNameHint string) (string, error) {
	for _, match := range mftRowKeyRx.FindAllStringSubmatch(page, -1) {
		if strings.Contains(match[2], fileNameHint) {
			return match[1], nil
		}
	}
	return "", fmt.Errorf("MFT portal page lists no file matching %q", fileNameHint)
}

func (s *FormSession) postRaw(ctx context.Context, pageURL string, form url.Values) (string, error) {
	resp, err := s.postRawResponse(ctx, pageURL, form)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("POST %s: unexpected status %d", pageURL, resp.StatusCode)
	}
	buf, err := io.ReadAll(resp.Body)
	return string(buf), err
}

func (s *FormSession) postRawResponse(ctx context.Context, pageURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pageURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Faces-Request", "partial/ajax")
	return s.do(req)
}
