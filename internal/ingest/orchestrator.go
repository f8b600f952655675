// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sapcc/go-bits/logg"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/db"
	"github.com/petrodata/wellhead/internal/fetch"
)

// A hung upstream portal must not stall the whole weekly run.
const perSourceTimeout = 30 * time.Minute

// Orchestrator sequences full ingestion runs. Each source runs in a child
// process (this binary re-executed with the "ingest-one" task), so that a
// crash or timeout in one adapter cannot take down the run, and its open
// transaction is rolled back by the server when the child dies.
type Orchestrator struct {
	Config     core.Configuration
	ConfigPath string
}

// SourceOutcome is the per-source result of an orchestrated run.
type SourceOutcome struct {
	Source   string
	Duration time.Duration
	Err      error
}

// RunSources ingests the given sources sequentially. An empty tags list means
// all configured sources. The returned error aggregates all per-source
// failures; partial loads count as failures here so that cron-level alerting
// sees them.
func (o Orchestrator) RunSources(ctx context.Context, tags []string, download bool) ([]SourceOutcome, error) {
	if len(tags) == 0 {
		tags = o.Config.SourceTags()
	}

	var (
		outcomes []SourceOutcome
		errs     *multierror.Error
	)
	for _, tag := range tags {
		if _, exists := o.Config.SourceConfigurationFor(tag); !exists {
			err := core.UnknownSourceError{Tag: tag}
			outcomes = append(outcomes, SourceOutcome{Source: tag, Err: err})
			errs = multierror.Append(errs, err)
			continue
		}
		outcome := o.runSourceInChildProcess(ctx, tag, download)
		outcomes = append(outcomes, outcome)
		if outcome.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("source %s: %w", tag, outcome.Err))
		}

		stateErr := o.recordSourceRun(tag, outcome.Err == nil)
		if stateErr != nil {
			logg.Error("could not update scheduler state file: %s", stateErr.Error())
		}

		if ctx.Err() != nil {
			break
		}
	}
	return outcomes, errs.ErrorOrNil()
}

func (o Orchestrator) runSourceInChildProcess(ctx context.Context, tag string, download bool) SourceOutcome {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, perSourceTimeout)
	defer cancel()

	args := []string{"ingest-one", o.ConfigPath}
	if !download {
		args = append(args, "--no-download")
	}
	args = append(args, tag)

	cmd := exec.CommandContext(ctx, os.Args[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logg.Info("ingesting source %s...", tag)
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("timed out after %s", perSourceTimeout)
	}
	return SourceOutcome{Source: tag, Duration: time.Since(start), Err: err}
}

// prepareSource instantiates the adapter for one source and either performs
// its download into a fresh stage or points it at the latest staged files.
func (o Orchestrator) prepareSource(ctx context.Context, tag string, download bool) (core.SourceAdapter, fetch.Stage, error) {
	srcCfg, exists := o.Config.SourceConfigurationFor(tag)
	if !exists {
		return nil, fetch.Stage{}, core.UnknownSourceError{Tag: tag}
	}

	client := fetch.NewClient(o.Config.Download.MaxAttempts,
		time.Duration(o.Config.Download.BaseDelaySecs*float64(time.Second)))
	adapter, err := core.InstantiateAdapter(client, srcCfg)
	if err != nil {
		return nil, fetch.Stage{}, err
	}

	var stage fetch.Stage
	if download {
		stage, err = fetch.NewStage(o.Config.DataDir, tag, time.Now())
		if err != nil {
			return nil, fetch.Stage{}, err
		}
		err = adapter.Download(ctx, stage)
		if err != nil {
			return nil, fetch.Stage{}, fmt.Errorf("while downloading source %s: %w", tag, err)
		}
	} else {
		stage, err = fetch.LatestStage(o.Config.DataDir, tag)
		if err != nil {
			return nil, fetch.Stage{}, err
		}
		logg.Info("source %s: reusing staged files in %s", tag, stage.Dir)
	}
	return adapter, stage, nil
}

// RunIngestOne performs the download and load of a single source in-process.
// This is the body of the "ingest-one" child invocation.
func (o Orchestrator) RunIngestOne(ctx context.Context, loader *Loader, tag string, download bool) (LoadResult, error) {
	adapter, stage, err := o.prepareSource(ctx, tag, download)
	if err != nil {
		return LoadResult{}, err
	}

	result, err := loader.Run(ctx, tag, adapter.SourceURL(), func(sink core.RecordSink) (core.IngestStats, error) {
		return adapter.Ingest(ctx, stage, sink)
	})
	if err != nil {
		return result, err
	}
	logg.Info("source %s: %d assets, %d operators, %d production records (%s) in %s",
		tag, result.AssetsUpserted, result.OperatorsUpserted, result.ProductionInserted,
		result.Status, result.Duration.Round(time.Millisecond))
	if result.Status != db.ProvenanceSuccess {
		return result, fmt.Errorf("load finished with status %q: %s", result.Status, result.notes())
	}
	return result, nil
}

// RunTestParse feeds one source through its adapter into the given sink
// without any database involvement. This backs the test-parse task.
func (o Orchestrator) RunTestParse(ctx context.Context, tag string, download bool, sink core.RecordSink) (core.IngestStats, error) {
	adapter, stage, err := o.prepareSource(ctx, tag, download)
	if err != nil {
		return core.IngestStats{}, err
	}
	return adapter.Ingest(ctx, stage, sink)
}

// schedulerState is persisted across runs so that operators can see at a
// glance when each source last ran, even without DB access.
type schedulerState struct {
	Sources map[string]sourceState `json:"sources"`
}

type sourceState struct {
	LastRun    time.Time `json:"last_run"`
	LastStatus string    `json:"last_status"`
}

func (o Orchestrator) stateFilePath() string {
	return filepath.Join(o.Config.DataDir, "scheduler_state.json")
}

func (o Orchestrator) readState() schedulerState {
	state := schedulerState{Sources: make(map[string]sourceState)}
	buf, err := os.ReadFile(o.stateFilePath())
	if err != nil {
		return state
	}
	err = json.Unmarshal(buf, &state)
	if err != nil || state.Sources == nil {
		return schedulerState{Sources: make(map[string]sourceState)}
	}
	return state
}

func (o Orchestrator) recordSourceRun(tag string, success bool) error {
	state := o.readState()
	status := "ok"
	if !success {
		status = "failed"
	}
	state.Sources[tag] = sourceState{LastRun: time.Now().UTC(), LastStatus: status}

	buf, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(o.stateFilePath(), append(buf, '\n'), 0644)
}
