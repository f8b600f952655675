// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sapcc/go-bits/logg"
)

// JSONAPIClient talks to an authenticated JSON API: a single email+password
// login yields a JWT that is attached as a Bearer token to every request, and
// list endpoints page via offset/limit until a short page returns.
//
// The upstream API documents a 1500 req/min ceiling; 429 responses are
// handled as a pacing signal by the underlying Client, not as failures.
type JSONAPIClient struct {
	Client   *Client
	BaseURL  string
	Email    string
	Password string
	// PageSize is the limit per page request (default 500).
	PageSize int

	token string
}

type loginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Login authenticates and stores the JWT. It is called lazily by GetPaged,
// and once more if a request comes back 401 (expired token); a second 401
// abandons the source.
func (c *JSONAPIClient) Login(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"email":    c.Email,
		"password": c.Password,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s/auth/login: unexpected status %d", c.BaseURL, resp.StatusCode)
	}

	var lr loginResponse
	err = json.NewDecoder(resp.Body).Decode(&lr)
	if err != nil {
		return err
	}
	if lr.Token == "" {
		return fmt.Errorf("POST %s/auth/login: response contains no token", c.BaseURL)
	}
	c.token = lr.Token
	return nil
}

// GetPaged iterates over all records of a list endpoint, invoking action once
// per record with the raw JSON object.
func (c *JSONAPIClient) GetPaged(ctx context.Context, path string, extraParams url.Values, action func(json.RawMessage) error) error {
	pageSize := c.PageSize
	if pageSize == 0 {
		pageSize = 500
	}

	for offset := 0; ; offset += pageSize {
		records, err := c.fetchPage(ctx, path, extraParams, offset, pageSize)
		if err != nil {
			return fmt.Errorf("while paging %s at offset %d: %w", path, offset, err)
		}
		for _, record := range records {
			err := action(record)
			if err != nil {
				return err
			}
		}
		if len(records) < pageSize {
			return nil
		}
	}
}

func (c *JSONAPIClient) fetchPage(ctx context.Context, path string, extraParams url.Values, offset, limit int) ([]json.RawMessage, error) {
	if c.token == "" {
		err := c.Login(ctx)
		if err != nil {
			return nil, err
		}
	}

	records, status, err := c.tryFetchPage(ctx, path, extraParams, offset, limit)
	if status == http.StatusUnauthorized {
		logg.Info("token for %s rejected, re-authenticating once", c.BaseURL)
		err = c.Login(ctx)
		if err != nil {
			return nil, err
		}
		records, status, err = c.tryFetchPage(ctx, path, extraParams, offset, limit)
	}
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", path, status)
	}
	return records, nil
}

func (c *JSONAPIClient) tryFetchPage(ctx context.Context, path string, extraParams url.Values, offset, limit int) ([]json.RawMessage, int, error) {
	query := url.Values{}
	for key, values := range extraParams {
		query[key] = values
	}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var records []json.RawMessage
	err = json.NewDecoder(resp.Body).Decode(&records)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return records, resp.StatusCode, nil
}
