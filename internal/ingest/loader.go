// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest contains the write side of the pipeline: the batching
// loader, the spatial production staging, the deduplicator, the linker and
// the orchestrator that sequences them.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/lib/pq"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/db"
)

// Loader upserts canonical entities into the database. One Run() is one
// source-level transaction; batches inside it are isolated by savepoints so
// that a bad batch costs its own rows, not the whole run.
type Loader struct {
	DB        *gorp.DbMap
	BatchSize int
	// Usually time.Now, but can be changed inside unit tests.
	TimeNow func() time.Time
}

// NewLoader creates a Loader with the default batch size.
func NewLoader(dbm *gorp.DbMap) *Loader {
	return &Loader{DB: dbm, BatchSize: 1000, TimeNow: time.Now}
}

// LoadResult reports the outcome of one source load.
type LoadResult struct {
	Source             string
	SourceURL          string
	AssetsUpserted     int
	OperatorsUpserted  int
	ProductionInserted int
	StagedDropped      int
	Stats              core.IngestStats
	ProvenanceID       int64
	Duration           time.Duration
	Errors             []string
	Status             db.ProvenanceStatus
}

// recordCount is what goes into the provenance row.
func (r LoadResult) recordCount() int64 {
	return int64(r.AssetsUpserted + r.OperatorsUpserted + r.ProductionInserted)
}

func (r LoadResult) notes() string {
	var parts []string
	if r.Stats.ParseErrors > 0 {
		parts = append(parts, fmt.Sprintf("%d parse errors", r.Stats.ParseErrors))
	}
	if r.Stats.SkippedRows > 0 {
		parts = append(parts, fmt.Sprintf("%d rows skipped", r.Stats.SkippedRows))
	}
	if r.StagedDropped > 0 {
		parts = append(parts, fmt.Sprintf("%d staged rows without nearby asset", r.StagedDropped))
	}
	parts = append(parts, r.Errors...)
	return strings.Join(parts, "; ")
}

// Run executes the given ingest callback inside one transaction and records
// provenance. The callback receives a sink whose batches are flushed in
// dependency order: operators before assets before production, so that
// foreign keys hold at every point.
func (l *Loader) Run(ctx context.Context, sourceTag, sourceURL string, ingest func(core.RecordSink) (core.IngestStats, error)) (LoadResult, error) {
	start := l.TimeNow()
	result := LoadResult{Source: sourceTag, SourceURL: sourceURL}

	runErr := l.runInTransaction(ctx, sourceTag, &result, ingest)

	result.Duration = l.TimeNow().Sub(start)
	switch {
	case runErr != nil:
		result.Status = db.ProvenanceFailed
		result.Errors = append(result.Errors, runErr.Error())
	case len(result.Errors) > 0 && result.recordCount() > 0:
		result.Status = db.ProvenancePartial
	case len(result.Errors) > 0:
		result.Status = db.ProvenanceFailed
	default:
		result.Status = db.ProvenanceSuccess
	}

	// the provenance row is written outside the main transaction so that a
	// rollback cannot lose it
	provenance := db.DataProvenance{
		SourceName:  sourceTag,
		SourceURL:   sourceURL,
		IngestedAt:  l.TimeNow(),
		RecordCount: result.recordCount(),
		Status:      result.Status,
		Notes:       result.notes(),
	}
	err := l.DB.Insert(&provenance)
	if err != nil {
		logg.Error("could not write provenance row for %s: %s", sourceTag, err.Error())
	} else {
		result.ProvenanceID = provenance.ID
	}

	recordLoadMetrics(result)
	if runErr != nil {
		return result, fmt.Errorf("while loading source %s: %w", sourceTag, runErr)
	}
	return result, nil
}

func (l *Loader) runInTransaction(ctx context.Context, sourceTag string, result *LoadResult, ingest func(core.RecordSink) (core.IngestStats, error)) error {
	tx, err := l.DB.Begin()
	if err != nil {
		return err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	sink := &txSink{
		ctx:       ctx,
		tx:        tx,
		batchSize: l.BatchSize,
		now:       l.TimeNow(),
		sourceTag: sourceTag,
		result:    result,
		operators: make(map[string]core.Operator),
		assets:    make(map[string]core.Asset),
		prods:     make(map[prodKey]core.ProductionRecord),
	}

	stats, err := ingest(sink)
	result.Stats = stats
	if err != nil {
		return err
	}
	err = sink.finish()
	if err != nil {
		return err
	}
	return tx.Commit()
}

type prodKey struct {
	AssetID string
	Month   time.Time
}

// txSink implements core.RecordSink on top of one open transaction. Entities
// are buffered per kind and deduplicated by their natural key within the
// buffer (a multi-row INSERT cannot touch the same row twice), then flushed
// as multi-row upserts of up to batchSize rows.
type txSink struct {
	ctx       context.Context
	tx        *gorp.Transaction
	batchSize int
	now       time.Time
	sourceTag string
	result    *LoadResult

	opOrder    []string
	operators  map[string]core.Operator
	assetOrder []string
	assets     map[string]core.Asset
	prodOrder  []prodKey
	prods      map[prodKey]core.ProductionRecord

	staged          []core.StagedProduction
	stagedWindow    float64
	stagedTableMade bool
	stagedTotal     int
	batchSeq        int
}

// AddOperator implements the core.RecordSink interface.
func (s *txSink) AddOperator(op core.Operator) error {
	if existing, exists := s.operators[op.ID]; exists {
		s.operators[op.ID] = mergeOperators(existing, op)
		return nil
	}
	s.operators[op.ID] = op
	s.opOrder = append(s.opOrder, op.ID)
	if len(s.opOrder) >= s.batchSize {
		return s.flushOperators()
	}
	return nil
}

// AddAsset implements the core.RecordSink interface.
func (s *txSink) AddAsset(asset core.Asset) error {
	if existing, exists := s.assets[asset.ID]; exists {
		s.assets[asset.ID] = mergeAssets(existing, asset)
		return nil
	}
	s.assets[asset.ID] = asset
	s.assetOrder = append(s.assetOrder, asset.ID)
	if len(s.assetOrder) >= s.batchSize {
		// assets may reference buffered operators
		err := s.flushOperators()
		if err != nil {
			return err
		}
		return s.flushAssets()
	}
	return nil
}

// AddProduction implements the core.RecordSink interface.
func (s *txSink) AddProduction(rec core.ProductionRecord) error {
	if rec.OilBBL == nil && rec.GasMCF == nil && rec.OreTons == nil {
		return fmt.Errorf("production record for %s/%s has no volume at all", rec.AssetID, rec.Month.Format("2006-01"))
	}
	key := prodKey{rec.AssetID, rec.Month}
	if existing, exists := s.prods[key]; exists {
		s.prods[key] = mergeProduction(existing, rec)
		return nil
	}
	s.prods[key] = rec
	s.prodOrder = append(s.prodOrder, key)
	if len(s.prodOrder) >= s.batchSize {
		return s.flushAll()
	}
	return nil
}

// StageProduction implements the core.RecordSink interface.
func (s *txSink) StageProduction(row core.StagedProduction, windowDeg float64) error {
	s.stagedWindow = windowDeg
	s.staged = append(s.staged, row)
	if len(s.staged) >= s.batchSize {
		return s.flushStaged()
	}
	return nil
}

func (s *txSink) flushAll() error {
	err := s.flushOperators()
	if err != nil {
		return err
	}
	err = s.flushAssets()
	if err != nil {
		return err
	}
	return s.flushProduction()
}

// finish flushes all remaining buffers and resolves the spatial staging.
func (s *txSink) finish() error {
	err := s.flushAll()
	if err != nil {
		return err
	}
	err = s.flushStaged()
	if err != nil {
		return err
	}
	return s.resolveStagedProduction()
}

// inBatch runs one batch statement inside a savepoint. A failing batch (e.g.
// a foreign key violation) is rolled back to the savepoint and reported into
// result.Errors; the enclosing transaction stays usable and commits whatever
// else succeeded, which is what turns a run "partial" instead of "failed".
func (s *txSink) inBatch(label string, action func() (rowCount int64, err error)) (int64, error) {
	// cancellation takes effect between batches; a running statement finishes
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	s.batchSeq++
	savepoint := fmt.Sprintf("batch_%d", s.batchSeq)

	_, err := s.tx.Exec("SAVEPOINT " + savepoint)
	if err != nil {
		return 0, err
	}
	rowCount, err := action()
	if err != nil {
		msg := fmt.Sprintf("%s batch failed: %s", label, err.Error())
		logg.Error("source %s: %s", s.sourceTag, msg)
		s.result.Errors = append(s.result.Errors, msg)
		_, err := s.tx.Exec("ROLLBACK TO SAVEPOINT " + savepoint)
		return 0, err
	}
	_, err = s.tx.Exec("RELEASE SAVEPOINT " + savepoint)
	return rowCount, err
}

var operatorUpsertQuery = sqlext.SimplifyWhitespace(`
	INSERT INTO operators (id, legal_name, aliases, hq_state, hq_city, created_at, updated_at)
	VALUES %s
	ON CONFLICT (id) DO UPDATE SET
		legal_name = COALESCE(NULLIF(EXCLUDED.legal_name, ''), operators.legal_name),
		aliases    = ARRAY(SELECT DISTINCT alias FROM unnest(operators.aliases || EXCLUDED.aliases) AS alias ORDER BY alias),
		hq_state   = COALESCE(EXCLUDED.hq_state, operators.hq_state),
		hq_city    = COALESCE(EXCLUDED.hq_city, operators.hq_city),
		updated_at = EXCLUDED.updated_at
`)

func (s *txSink) flushOperators() error {
	if len(s.opOrder) == 0 {
		return nil
	}
	var (
		placeholders []string
		args         []any
	)
	for _, id := range s.opOrder {
		op := s.operators[id]
		aliases := append([]string{op.LegalName}, op.RawNames...)
		placeholders = append(placeholders, makeRowPlaceholder(len(args), 7))
		args = append(args, op.ID, op.LegalName, pq.Array(dedupStrings(aliases)), op.HQState, op.HQCity, s.now, s.now)
	}
	count, err := s.inBatch("operator", func() (int64, error) {
		res, err := s.tx.Exec(fmt.Sprintf(operatorUpsertQuery, strings.Join(placeholders, ", ")), args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return err
	}
	s.result.OperatorsUpserted += int(count)
	s.opOrder = s.opOrder[:0]
	s.operators = make(map[string]core.Operator)
	return nil
}

// The asset UPDATE clause is intentionally selective: fields that a source
// may omit keep their previous value via COALESCE, a (0,0) coordinate pair
// never overwrites a known location, and status is restated authoritatively
// by every source.
var assetUpsertQuery = sqlext.SimplifyWhitespace(`
	INSERT INTO assets (id, asset_type, name, state, county, latitude, longitude, basin,
	                    operator_id, status, spud_date, depth_ft, commodity, created_at, updated_at)
	VALUES %s
	ON CONFLICT (id) DO UPDATE SET
		name        = COALESCE(NULLIF(EXCLUDED.name, ''), assets.name),
		county      = COALESCE(NULLIF(EXCLUDED.county, ''), assets.county),
		latitude    = CASE WHEN EXCLUDED.latitude = 0 AND EXCLUDED.longitude = 0 THEN assets.latitude ELSE EXCLUDED.latitude END,
		longitude   = CASE WHEN EXCLUDED.latitude = 0 AND EXCLUDED.longitude = 0 THEN assets.longitude ELSE EXCLUDED.longitude END,
		basin       = COALESCE(EXCLUDED.basin, assets.basin),
		operator_id = COALESCE(EXCLUDED.operator_id, assets.operator_id),
		status      = EXCLUDED.status,
		spud_date   = COALESCE(EXCLUDED.spud_date, assets.spud_date),
		depth_ft    = COALESCE(EXCLUDED.depth_ft, assets.depth_ft),
		commodity   = COALESCE(NULLIF(EXCLUDED.commodity, ''), assets.commodity),
		updated_at  = EXCLUDED.updated_at
`)

func (s *txSink) flushAssets() error {
	if len(s.assetOrder) == 0 {
		return nil
	}
	var (
		placeholders []string
		args         []any
	)
	for _, id := range s.assetOrder {
		asset := s.assets[id]
		placeholders = append(placeholders, makeRowPlaceholder(len(args), 15))
		args = append(args,
			asset.ID, string(asset.Type), asset.Name, asset.State, asset.County,
			asset.Latitude, asset.Longitude, asset.Basin, asset.OperatorID,
			string(asset.Status), asset.SpudDate, asset.DepthFt, asset.Commodity,
			s.now, s.now)
	}
	count, err := s.inBatch("asset", func() (int64, error) {
		res, err := s.tx.Exec(fmt.Sprintf(assetUpsertQuery, strings.Join(placeholders, ", ")), args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return err
	}
	s.result.AssetsUpserted += int(count)
	s.assetOrder = s.assetOrder[:0]
	s.assets = make(map[string]core.Asset)
	return nil
}

var productionUpsertQuery = sqlext.SimplifyWhitespace(`
	INSERT INTO production_records (asset_id, month, oil_volume_bbl, gas_volume_mcf, ore_volume_tons, water_cut_pct, downtime_days, created_at)
	VALUES %s
	ON CONFLICT (asset_id, month) DO UPDATE SET
		oil_volume_bbl  = COALESCE(EXCLUDED.oil_volume_bbl,  production_records.oil_volume_bbl),
		gas_volume_mcf  = COALESCE(EXCLUDED.gas_volume_mcf,  production_records.gas_volume_mcf),
		ore_volume_tons = COALESCE(EXCLUDED.ore_volume_tons, production_records.ore_volume_tons),
		water_cut_pct   = COALESCE(EXCLUDED.water_cut_pct,   production_records.water_cut_pct),
		downtime_days   = COALESCE(EXCLUDED.downtime_days,   production_records.downtime_days)
`)

func (s *txSink) flushProduction() error {
	if len(s.prodOrder) == 0 {
		return nil
	}
	var (
		placeholders []string
		args         []any
	)
	for _, key := range s.prodOrder {
		rec := s.prods[key]
		placeholders = append(placeholders, makeRowPlaceholder(len(args), 8))
		args = append(args, rec.AssetID, rec.Month, rec.OilBBL, rec.GasMCF, rec.OreTons, rec.WaterCutPct, rec.DowntimeDays, s.now)
	}
	count, err := s.inBatch("production", func() (int64, error) {
		res, err := s.tx.Exec(fmt.Sprintf(productionUpsertQuery, strings.Join(placeholders, ", ")), args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return err
	}
	s.result.ProductionInserted += int(count)
	s.prodOrder = s.prodOrder[:0]
	s.prods = make(map[prodKey]core.ProductionRecord)
	return nil
}

// makeRowPlaceholder renders "($1, $2, ..., $n)" starting at offset+1.
func makeRowPlaceholder(offset, count int) string {
	parts := make([]string, count)
	for idx := range parts {
		parts[idx] = fmt.Sprintf("$%d", offset+idx+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func dedupStrings(input []string) []string {
	seen := make(map[string]bool, len(input))
	var result []string
	for _, s := range input {
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}

func mergeOperators(older, newer core.Operator) core.Operator {
	merged := older
	if merged.LegalName == "" {
		merged.LegalName = newer.LegalName
	}
	merged.RawNames = dedupStrings(append(append([]string{}, older.RawNames...), newer.RawNames...))
	if merged.HQState == nil {
		merged.HQState = newer.HQState
	}
	if merged.HQCity == nil {
		merged.HQCity = newer.HQCity
	}
	return merged
}

func mergeAssets(older, newer core.Asset) core.Asset {
	merged := older
	// status is restated authoritatively by the most recent record
	merged.Status = newer.Status
	if merged.Name == "" {
		merged.Name = newer.Name
	}
	if merged.County == "" {
		merged.County = newer.County
	}
	if merged.Latitude == 0 && merged.Longitude == 0 {
		merged.Latitude = newer.Latitude
		merged.Longitude = newer.Longitude
	}
	if merged.Basin == nil {
		merged.Basin = newer.Basin
	}
	if merged.OperatorID == nil {
		merged.OperatorID = newer.OperatorID
	}
	if merged.SpudDate == nil {
		merged.SpudDate = newer.SpudDate
	}
	if merged.DepthFt == nil {
		merged.DepthFt = newer.DepthFt
	}
	if merged.Commodity == "" {
		merged.Commodity = newer.Commodity
	}
	return merged
}

func mergeProduction(older, newer core.ProductionRecord) core.ProductionRecord {
	merged := older
	if merged.OilBBL == nil {
		merged.OilBBL = newer.OilBBL
	}
	if merged.GasMCF == nil {
		merged.GasMCF = newer.GasMCF
	}
	if merged.OreTons == nil {
		merged.OreTons = newer.OreTons
	}
	if merged.WaterCutPct == nil {
		merged.WaterCutPct = newer.WaterCutPct
	}
	if merged.DowntimeDays == nil {
		merged.DowntimeDays = newer.DowntimeDays
	}
	return merged
}
