// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
	"os"

	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/osext"
	yaml "gopkg.in/yaml.v2"
)

// Configuration is the top-level object that the YAML config file is
// unmarshalled into.
type Configuration struct {
	// DataDir is where staged downloads live. The DATA_DIR environment
	// variable overrides it.
	DataDir  string                  `yaml:"data_dir"`
	Sources  []SourceConfiguration   `yaml:"sources"`
	Dedup    DedupConfiguration      `yaml:"dedup"`
	Schedule ScheduleConfiguration   `yaml:"schedule"`
	Audit    AuditConfiguration      `yaml:"audit"`
	Download DownloaderConfiguration `yaml:"download"`
}

// SourceConfiguration describes one enabled regulatory source. Params are
// deferred and unmarshalled into the adapter struct during instantiation,
// so each adapter defines its own parameter surface.
type SourceConfiguration struct {
	Tag        string         `yaml:"source"`
	Parameters YamlRawMessage `yaml:"params"`
}

func (cfg SourceConfiguration) unmarshalParamsInto(adapter SourceAdapter) error {
	if len(cfg.Parameters) == 0 {
		return nil
	}
	err := yaml.UnmarshalStrict([]byte(cfg.Parameters), adapter)
	if err != nil {
		return fmt.Errorf("while parsing params for source %s: %w", cfg.Tag, err)
	}
	return nil
}

// DedupConfiguration holds the thresholds for the deduplication pass.
type DedupConfiguration struct {
	// FuzzyThreshold is the maximum Levenshtein distance between two
	// normalized operator names that still counts as a duplicate.
	FuzzyThreshold int `yaml:"fuzzy_threshold"`
	// ProximityDeg is the coordinate window (in degrees, per axis) within
	// which two assets of the same operator are considered the same well.
	ProximityDeg float64 `yaml:"proximity_deg"`
}

// ScheduleConfiguration drives the long-running scheduler mode.
type ScheduleConfiguration struct {
	// Cron is a standard five-field cron expression.
	Cron string `yaml:"cron"`
}

// AuditConfiguration enables publishing of merge/link audit events to a
// RabbitMQ queue. Leaving RabbitMQURL empty disables the trail.
type AuditConfiguration struct {
	RabbitMQURL string `yaml:"rabbitmq_url"`
	QueueName   string `yaml:"queue_name"`
}

// DownloaderConfiguration tunes the shared HTTP retry policy.
type DownloaderConfiguration struct {
	MaxAttempts   int     `yaml:"max_attempts"`
	BaseDelaySecs float64 `yaml:"base_delay_secs"`
}

// NewConfiguration reads and validates the configuration file at the given
// path.
func NewConfiguration(path string) (cfg Configuration, err error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	err = yaml.UnmarshalStrict(buf, &cfg)
	if err != nil {
		return Configuration{}, fmt.Errorf("while parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	errs := cfg.validate()
	if !errs.IsEmpty() {
		return Configuration{}, fmt.Errorf("config file %s is invalid: %s", path, errs.Join(", "))
	}
	return cfg, nil
}

func (cfg *Configuration) applyDefaults() {
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	cfg.DataDir = osext.GetenvOrDefault("DATA_DIR", cfg.DataDir)
	if cfg.Dedup.FuzzyThreshold == 0 {
		cfg.Dedup.FuzzyThreshold = 3
	}
	if cfg.Dedup.ProximityDeg == 0 {
		cfg.Dedup.ProximityDeg = 0.01
	}
	if cfg.Schedule.Cron == "" {
		// weekly, Sunday 02:00
		cfg.Schedule.Cron = "0 2 * * 0"
	}
	if cfg.Audit.QueueName == "" {
		cfg.Audit.QueueName = "wellhead.audit"
	}
	if cfg.Download.MaxAttempts == 0 {
		cfg.Download.MaxAttempts = 4
	}
	if cfg.Download.BaseDelaySecs == 0 {
		cfg.Download.BaseDelaySecs = 2
	}
}

func (cfg Configuration) validate() (errs errext.ErrorSet) {
	if len(cfg.Sources) == 0 {
		errs.Addf("missing configuration value: sources[]")
	}
	seen := make(map[string]bool)
	for idx, src := range cfg.Sources {
		if src.Tag == "" {
			errs.Addf("missing configuration value: sources[%d].source", idx)
			continue
		}
		if seen[src.Tag] {
			errs.Addf("duplicate source tag: %s", src.Tag)
		}
		seen[src.Tag] = true
	}
	return errs
}

// SourceConfigurationFor returns the configuration entry for the given source
// tag, or false.
func (cfg Configuration) SourceConfigurationFor(tag string) (SourceConfiguration, bool) {
	for _, src := range cfg.Sources {
		if src.Tag == tag {
			return src, true
		}
	}
	return SourceConfiguration{}, false
}

// SourceTags lists all configured source tags in config-file order.
func (cfg Configuration) SourceTags() []string {
	tags := make([]string, len(cfg.Sources))
	for idx, src := range cfg.Sources {
		tags[idx] = src.Tag
	}
	return tags
}

// YamlRawMessage is like json.RawMessage: during yaml.Unmarshal(), it
// collects the provided YAML representation instead of parsing it, so that
// parsing can be deferred until the concrete target type is known.
type YamlRawMessage []byte

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (m *YamlRawMessage) UnmarshalYAML(unmarshal func(any) error) error {
	var data any
	err := unmarshal(&data)
	if err != nil {
		return err
	}
	*m, err = yaml.Marshal(data)
	return err
}
