// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
)

// FormSession scrapes ASP.NET WebForms search pages: fetch the landing page,
// pull out the hidden ViewState fields, then replay them in a form POST
// together with the actual query parameters. Cookies are carried across
// requests within one session.
type FormSession struct {
	client *Client
	jar    *cookiejar.Jar
}

// ViewState holds the hidden state fields that WebForms pages require to be
// echoed back on every postback.
type ViewState struct {
	State      string
	Generator  string
	Validation string
}

// NewFormSession creates a session with its own cookie jar on top of the
// shared retry policy.
func NewFormSession(client *Client) (*FormSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &FormSession{client: client, jar: jar}, nil
}

func (s *FormSession) do(req *http.Request) (*http.Response, error) {
	// a shallow copy so the jar does not leak into unrelated requests
	httpClient := *s.client.HTTP
	httpClient.Jar = s.jar
	sessionClient := *s.client
	sessionClient.HTTP = &httpClient
	return sessionClient.Do(req)
}

// doBulk is like do, but on the untimed bulk client. The caller must bound
// the request through its context.
func (s *FormSession) doBulk(req *http.Request) (*http.Response, error) {
	httpClient := *s.client.BulkHTTP
	httpClient.Jar = s.jar
	sessionClient := *s.client
	sessionClient.HTTP = &httpClient
	return sessionClient.Do(req)
}

// FetchPage GETs a page and returns its body as a string.
func (s *FormSession) FetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return "", err
	}
	resp, err := s.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: unexpected status %d", pageURL, resp.StatusCode)
	}
	buf, err := io.ReadAll(resp.Body)
	return string(buf), err
}

// The hidden inputs are fixed-format `<input ... id="__VIEWSTATE" ...
// value="...">` tags, so anchored regexps are sufficient and we avoid pulling
// in an HTML parser for three attributes.
var (
	viewStateRx     = regexp.MustCompile(`id="__VIEWSTATE"[^>]*value="([^"]*)"`)
	viewStateGenRx  = regexp.MustCompile(`id="__VIEWSTATEGENERATOR"[^>]*value="([^"]*)"`)
	eventValidRx    = regexp.MustCompile(`id="__EVENTVALIDATION"[^>]*value="([^"]*)"`)
	hiddenInputRxes = map[string]*regexp.Regexp{
		"__VIEWSTATE":          viewStateRx,
		"__VIEWSTATEGENERATOR": viewStateGenRx,
		"__EVENTVALIDATION":    eventValidRx,
	}
)

// ExtractViewState pulls the hidden WebForms state fields out of a page. A
// page without a __VIEWSTATE field is not a WebForms page and is rejected.
func ExtractViewState(page string) (ViewState, error) {
	fields := make(map[string]string)
	for name, rx := range hiddenInputRxes {
		match := rx.FindStringSubmatch(page)
		if match != nil {
			fields[name] = match[1]
		}
	}
	if fields["__VIEWSTATE"] == "" {
		return ViewState{}, fmt.Errorf("page does not contain a __VIEWSTATE field")
	}
	return ViewState{
		State:      fields["__VIEWSTATE"],
		Generator:  fields["__VIEWSTATEGENERATOR"],
		Validation: fields["__EVENTVALIDATION"],
	}, nil
}

// PostBack replays the ViewState plus the given form fields as a WebForms
// POST and returns the response body.
func (s *FormSession) PostBack(ctx context.Context, pageURL string, vs ViewState, fields url.Values) (string, error) {
	form := url.Values{}
	for key, values := range fields {
		form[key] = values
	}
	form.Set("__VIEWSTATE", vs.State)
	if vs.Generator != "" {
		form.Set("__VIEWSTATEGENERATOR", vs.Generator)
	}
	if vs.Validation != "" {
		form.Set("__EVENTVALIDATION", vs.Validation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pageURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.do(req)
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
