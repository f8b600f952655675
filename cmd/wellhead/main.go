// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/osext"

	"github.com/petrodata/wellhead/internal/audit"
	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/db"
	"github.com/petrodata/wellhead/internal/ingest"

	_ "github.com/petrodata/wellhead/internal/sources"
)

func main() {
	logg.ShowDebug = osext.GetenvBool("WELLHEAD_DEBUG")

	// first two arguments must be task name and configuration file
	if len(os.Args) < 3 {
		printUsageAndExit()
	}
	taskName, configPath, remainingArgs := os.Args[1], os.Args[2], os.Args[3:]

	cfg, err := core.NewConfiguration(configPath)
	if err != nil {
		logg.Fatal(err.Error())
	}

	// the migrate task must run before the regular db.Init can succeed
	if taskName == "migrate" {
		taskMigrate()
		return
	}

	dbConn, err := db.Init()
	if err != nil {
		logg.Fatal(err.Error())
	}
	dbMap := db.InitORM(dbConn)

	trail := audit.NewTrail(cfg.Audit.RabbitMQURL, cfg.Audit.QueueName)
	defer trail.Close()

	orch := ingest.Orchestrator{Config: cfg, ConfigPath: configPath}
	ctx := httpext.ContextWithSIGINT(context.Background(), 1*time.Second)

	var task func(context.Context, ingest.Orchestrator, *gorp.DbMap, *audit.Trail, []string) error
	switch taskName {
	case "ingest":
		task = taskIngest
	case "ingest-one":
		task = taskIngestOne
	case "dedup":
		task = taskDedup
	case "link":
		task = taskLink
	case "schedule":
		task = taskSchedule
	case "test-parse":
		task = taskTestParse
	default:
		printUsageAndExit()
	}

	err = task(ctx, orch, dbMap, trail, remainingArgs)
	if err != nil {
		logg.Fatal(err.Error())
	}
}

var usageMessage = strings.Replace(strings.TrimSpace(`
Usage:
\t%s migrate <config-file>
\t%s ingest <config-file> [--source=<tag,...>] [--download=false] [--dedup] [--link]
\t%s ingest-one <config-file> [--no-download] <source-tag>
\t%s dedup <config-file> [--dry-run]
\t%s link <config-file>
\t%s schedule <config-file> [--listen=<addr>]
\t%s test-parse <config-file> [--max=<n>] <source-tag>
`), `\t`, "\t", -1) + "\n"

func printUsageAndExit() {
	fmt.Fprintln(os.Stderr, strings.Replace(usageMessage, "%s", os.Args[0], -1))
	os.Exit(1)
}

func taskMigrate() {
	err := db.CreateDatabaseIfNotExist()
	if err != nil {
		logg.Fatal("cannot create database: " + err.Error())
	}
	// easypg applies pending migrations during connect
	dbConn, err := db.Init()
	if err != nil {
		logg.Fatal("migration failed: " + err.Error())
	}
	dbConn.Close()
	logg.Info("migrations applied")
}

func taskIngest(ctx context.Context, orch ingest.Orchestrator, dbMap *gorp.DbMap, trail *audit.Trail, args []string) error {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	sourceList := flags.String("source", "", "comma-separated source tags (default: all configured sources)")
	download := flags.Bool("download", true, "download fresh files (false reuses the latest staged download)")
	withDedup := flags.Bool("dedup", false, "run deduplication after all sources have loaded")
	withLink := flags.Bool("link", false, "run the linker after all sources have loaded")
	err := flags.Parse(args)
	if err != nil {
		return err
	}

	var tags []string
	if *sourceList != "" {
		tags = strings.Split(*sourceList, ",")
	}

	outcomes, runErr := orch.RunSources(ctx, tags, *download)
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			logg.Info("source %s: ok (%s)", outcome.Source, outcome.Duration.Round(time.Second))
		} else {
			logg.Error("source %s: %s", outcome.Source, outcome.Err.Error())
		}
	}
	trail.Record(audit.Event{Action: "ingest", Outcome: outcomeWord(runErr)})

	if *withDedup {
		err := taskDedup(ctx, orch, dbMap, trail, nil)
		if err != nil {
			return err
		}
	}
	if *withLink {
		err := taskLink(ctx, orch, dbMap, trail, nil)
		if err != nil {
			return err
		}
	}
	return runErr
}

func taskIngestOne(ctx context.Context, orch ingest.Orchestrator, dbMap *gorp.DbMap, trail *audit.Trail, args []string) error {
	flags := flag.NewFlagSet("ingest-one", flag.ExitOnError)
	noDownload := flags.Bool("no-download", false, "reuse the latest staged download")
	err := flags.Parse(args)
	if err != nil {
		return err
	}
	if flags.NArg() != 1 {
		printUsageAndExit()
	}

	loader := ingest.NewLoader(dbMap)
	_, err = orch.RunIngestOne(ctx, loader, flags.Arg(0), !*noDownload)
	return err
}

func taskDedup(ctx context.Context, orch ingest.Orchestrator, dbMap *gorp.DbMap, trail *audit.Trail, args []string) error {
	flags := flag.NewFlagSet("dedup", flag.ExitOnError)
	dryRun := flags.Bool("dry-run", false, "report merges without committing them")
	err := flags.Parse(args)
	if err != nil {
		return err
	}

	result, err := ingest.Dedup(dbMap, ingest.DedupConfig{
		FuzzyThreshold: orch.Config.Dedup.FuzzyThreshold,
		ProximityDeg:   orch.Config.Dedup.ProximityDeg,
		DryRun:         *dryRun,
	})
	for _, detail := range result.Details {
		logg.Info("dedup: %s", detail)
	}
	logg.Info("dedup: %d operator groups, %d operators merged, %d assets merged, %d cross-state matches",
		result.OperatorGroups, result.OperatorsMerged, result.AssetsMerged, result.CrossStateMatches)
	if !*dryRun {
		trail.Record(audit.Event{Action: "dedup", Outcome: outcomeWord(err), Details: result.Details})
	}
	return err
}

func taskLink(ctx context.Context, orch ingest.Orchestrator, dbMap *gorp.DbMap, trail *audit.Trail, args []string) error {
	result, err := ingest.Link(dbMap)
	logg.Info("link: %d of %d assets linked, %d cross-state, %d unmatched",
		result.AssetsLinked, result.AssetsExamined, result.CrossStateLinks, result.UnmatchedAssets)
	trail.Record(audit.Event{Action: "link", Outcome: outcomeWord(err), Details: result.Details})
	return err
}

func taskSchedule(ctx context.Context, orch ingest.Orchestrator, dbMap *gorp.DbMap, trail *audit.Trail, args []string) error {
	flags := flag.NewFlagSet("schedule", flag.ExitOnError)
	listenAddr := flags.String("listen", "127.0.0.1:8080", "listen address for Prometheus metrics")
	err := flags.Parse(args)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		err := httpext.ListenAndServeContext(ctx, *listenAddr, mux)
		if err != nil {
			logg.Error("metrics listener failed: %s", err.Error())
		}
	}()

	return orch.RunScheduled(ctx, func(ctx context.Context) {
		err := taskDedup(ctx, orch, dbMap, trail, nil)
		if err != nil {
			logg.Error("scheduled dedup failed: %s", err.Error())
			return
		}
		err = taskLink(ctx, orch, dbMap, trail, nil)
		if err != nil {
			logg.Error("scheduled link failed: %s", err.Error())
		}
	})
}

func outcomeWord(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// taskTestParse runs one source's download+parse+map cycle without touching
// the database, dumping the first N canonical records as JSON. For adapter
// development.
func taskTestParse(ctx context.Context, orch ingest.Orchestrator, dbMap *gorp.DbMap, trail *audit.Trail, args []string) error {
	flags := flag.NewFlagSet("test-parse", flag.ExitOnError)
	maxRecords := flags.Int("max", 20, "how many records to print per entity kind")
	download := flags.Bool("download", false, "download fresh files first")
	err := flags.Parse(args)
	if err != nil {
		return err
	}
	if flags.NArg() != 1 {
		printUsageAndExit()
	}

	sink := &printSink{max: *maxRecords}
	stats, err := orch.RunTestParse(ctx, flags.Arg(0), *download, sink)
	if err != nil && !errors.Is(err, errEnoughRecords) {
		return err
	}
	logg.Info("test-parse: %d assets, %d operators, %d production rows, %d staged rows seen (%d parse errors, %d skipped)",
		sink.assets, sink.operators, sink.production, sink.staged, stats.ParseErrors, stats.SkippedRows)
	return nil
}

var errEnoughRecords = errors.New("enough records printed")

// printSink implements core.RecordSink by pretty-printing records to stdout.
type printSink struct {
	max        int
	assets     int
	operators  int
	production int
	staged     int
}

func (s *printSink) print(kind string, record any) error {
	buf, err := json.Marshal(record)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", kind, string(buf))
	// sources yield either keyed or staged production, never both
	if s.assets >= s.max && s.operators >= s.max && (s.production >= s.max || s.staged >= s.max) {
		return errEnoughRecords
	}
	return nil
}

func (s *printSink) AddAsset(asset core.Asset) error {
	s.assets++
	if s.assets > s.max {
		return nil
	}
	return s.print("asset", asset)
}

func (s *printSink) AddOperator(op core.Operator) error {
	s.operators++
	if s.operators > s.max {
		return nil
	}
	return s.print("operator", op)
}

func (s *printSink) AddProduction(rec core.ProductionRecord) error {
	s.production++
	if s.production > s.max {
		return nil
	}
	return s.print("production", rec)
}

func (s *printSink) StageProduction(row core.StagedProduction, windowDeg float64) error {
	s.staged++
	if s.staged > s.max {
		return nil
	}
	return s.print("staged-production", row)
}
