// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"

	"github.com/sapcc/go-bits/pluggable"

	"github.com/petrodata/wellhead/internal/fetch"
)

// RecordSink receives canonical entities from a source adapter during
// ingestion. The implementation in internal/ingest buffers and flushes
// batched upserts inside the per-source transaction, so adapters can stream
// arbitrarily large files through it without accumulating them in memory.
type RecordSink interface {
	AddAsset(Asset) error
	AddOperator(Operator) error
	AddProduction(ProductionRecord) error
	// StageProduction queues a coordinate-keyed production row for the
	// nearest-asset spatial join. windowDeg is the per-source match window in
	// degrees; rows without a neighbour inside the window are dropped.
	StageProduction(row StagedProduction, windowDeg float64) error
}

// IngestStats reports the row-level outcomes of one adapter run. Parse errors
// never abort a source; they are counted here and surface in the provenance
// notes.
type IngestStats struct {
	ParseErrors int
	SkippedRows int
}

// Add merges the counters from another IngestStats into this one.
func (s *IngestStats) Add(other IngestStats) {
	s.ParseErrors += other.ParseErrors
	s.SkippedRows += other.SkippedRows
}

// SourceAdapter is implemented once per regulatory source. PluginTypeID()
// returns the source tag (e.g. "tx_rrc"), which doubles as the staging
// directory name and the identity prefix for everything the source produces.
//
// Download fetches the source's files into the given staging directory.
// Ingest parses the staged files and pushes canonical entities into the sink.
// The two phases are separate so that a staged download can be re-ingested
// without hitting the upstream server again.
type SourceAdapter interface {
	pluggable.Plugin

	// Init is called before any other interface method. The `params` object
	// from the source's configuration entry is yaml.Unmarshal()ed into the
	// adapter struct before Init runs.
	Init(client *fetch.Client, cfg SourceConfiguration) error

	// SourceURL names the upstream endpoint for the provenance record.
	SourceURL() string

	Download(ctx context.Context, stage fetch.Stage) error
	Ingest(ctx context.Context, stage fetch.Stage, sink RecordSink) (IngestStats, error)
}

// SourceAdapterRegistry is a pluggable.Registry for SourceAdapter
// implementations. Each source file in internal/sources registers itself via
// init().
var SourceAdapterRegistry pluggable.Registry[SourceAdapter]

// InstantiateAdapter builds and initializes the adapter for one configured
// source, including the yaml.Unmarshal of its params into the plugin object.
func InstantiateAdapter(client *fetch.Client, cfg SourceConfiguration) (SourceAdapter, error) {
	adapter := SourceAdapterRegistry.Instantiate(cfg.Tag)
	if adapter == nil {
		return nil, UnknownSourceError{Tag: cfg.Tag}
	}
	err := cfg.unmarshalParamsInto(adapter)
	if err != nil {
		return nil, err
	}
	err = adapter.Init(client, cfg)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// UnknownSourceError is returned when a configured source tag has no
// registered adapter.
type UnknownSourceError struct {
	Tag string
}

// Error implements the builtin/error interface.
func (e UnknownSourceError) Error() string {
	return "no source adapter registered for tag: " + e.Tag
}
