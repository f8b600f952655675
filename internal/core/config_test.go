// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"
	yaml "gopkg.in/yaml.v2"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(contents), 0644)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigurationDefaults(t *testing.T) {
	path := writeConfigFile(t, `
sources:
  - source: tx_rrc
  - source: nd_ndic
    params:
      months_back: 6
`)
	cfg, err := NewConfiguration(path)
	if err != nil {
		t.Fatal(err)
	}

	assert.DeepEqual(t, "data dir", cfg.DataDir, "./data")
	assert.DeepEqual(t, "fuzzy threshold", cfg.Dedup.FuzzyThreshold, 3)
	assert.DeepEqual(t, "proximity window", cfg.Dedup.ProximityDeg, 0.01)
	assert.DeepEqual(t, "cron", cfg.Schedule.Cron, "0 2 * * 0")
	assert.DeepEqual(t, "audit queue", cfg.Audit.QueueName, "wellhead.audit")
	assert.DeepEqual(t, "download attempts", cfg.Download.MaxAttempts, 4)
	assert.DeepEqual(t, "source tags", cfg.SourceTags(), []string{"tx_rrc", "nd_ndic"})
}

func TestConfigurationDataDirOverride(t *testing.T) {
	path := writeConfigFile(t, `
data_dir: /srv/wellhead
sources:
  - source: tx_rrc
`)
	t.Setenv("DATA_DIR", "/tmp/override")
	cfg, err := NewConfiguration(path)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "data dir", cfg.DataDir, "/tmp/override")
}

func TestConfigurationValidation(t *testing.T) {
	_, err := NewConfiguration(writeConfigFile(t, `data_dir: ./data`))
	if err == nil || !strings.Contains(err.Error(), "missing configuration value: sources[]") {
		t.Errorf("expected missing-sources error, got %v", err)
	}

	_, err = NewConfiguration(writeConfigFile(t, `
sources:
  - source: tx_rrc
  - source: tx_rrc
`))
	if err == nil || !strings.Contains(err.Error(), "duplicate source tag: tx_rrc") {
		t.Errorf("expected duplicate-tag error, got %v", err)
	}

	_, err = NewConfiguration(writeConfigFile(t, `
sources:
  - params:
      page_size: 500
`))
	if err == nil || !strings.Contains(err.Error(), "sources[0].source") {
		t.Errorf("expected missing-tag error, got %v", err)
	}
}

func TestConfigurationRejectsUnknownKeys(t *testing.T) {
	_, err := NewConfiguration(writeConfigFile(t, `
sources:
  - source: tx_rrc
surces_typo: true
`))
	if err == nil {
		t.Fatal("expected the unknown top-level key to be rejected")
	}
}

func TestSourceParamsAreDeferred(t *testing.T) {
	path := writeConfigFile(t, `
sources:
  - source: nd_ndic
    params:
      months_back: 6
      url_template: "https://example.com/%s.csv"
`)
	cfg, err := NewConfiguration(path)
	if err != nil {
		t.Fatal(err)
	}

	src, exists := cfg.SourceConfigurationFor("nd_ndic")
	if !exists {
		t.Fatal("nd_ndic not found in configuration")
	}

	// the params block is re-marshalled YAML; it parses into whatever struct
	// the adapter declares, and unknown keys only fail at that point
	var params struct {
		MonthsBack  int    `yaml:"months_back"`
		URLTemplate string `yaml:"url_template"`
	}
	err = yaml.UnmarshalStrict([]byte(src.Parameters), &params)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "months_back", params.MonthsBack, 6)
	assert.DeepEqual(t, "url_template", params.URLTemplate, "https://example.com/%s.csv")

	_, exists = cfg.SourceConfigurationFor("tx_rrc")
	assert.DeepEqual(t, "unknown tag lookup", exists, false)
}
