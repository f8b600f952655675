// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sapcc/go-bits/assert"

	"github.com/petrodata/wellhead/internal/core"
	"github.com/petrodata/wellhead/internal/db"
)

var loaderTestTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func setupLoader(t *testing.T) (*Loader, sqlmock.Sqlmock) {
	t.Helper()
	dbConn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dbConn.Close() })

	loader := NewLoader(db.InitORM(dbConn))
	loader.TimeNow = func() time.Time { return loaderTestTime }
	return loader, mock
}

func expectProvenanceInsert(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery(`insert into "data_provenance"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
}

func TestLoaderSuccessfulRun(t *testing.T) {
	loader, mock := setupLoader(t)

	mock.ExpectBegin()
	// buffers flush in dependency order, one savepoint per batch
	mock.ExpectExec("SAVEPOINT batch_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO operators .* ON CONFLICT").
		WithArgs("tx_rrc_OP_660410", "Pioneer Natural Resources",
			pq.Array([]string{"Pioneer Natural Resources", "PIONEER NAT RES USA"}),
			nil, nil, loaderTestTime, loaderTestTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RELEASE SAVEPOINT batch_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT batch_2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO assets .* ON CONFLICT").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RELEASE SAVEPOINT batch_2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT batch_3").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO production_records .* ON CONFLICT").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RELEASE SAVEPOINT batch_3").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	expectProvenanceInsert(mock, 42)

	result, err := loader.Run(context.Background(), "tx_rrc", "https://example.com/pdq.zip", func(sink core.RecordSink) (core.IngestStats, error) {
		err := sink.AddOperator(core.Operator{
			ID:        "tx_rrc_OP_660410",
			LegalName: "Pioneer Natural Resources",
			RawNames:  []string{"PIONEER NAT RES USA"},
		})
		if err != nil {
			return core.IngestStats{}, err
		}
		err = sink.AddAsset(core.Asset{
			ID:         "tx_rrc_00004212345678",
			Type:       core.AssetTypeOil,
			Name:       "SMITH UNIT 1H",
			State:      "TX",
			County:     "Midland",
			Latitude:   31.9,
			Longitude:  -102.1,
			OperatorID: core.Ptr("tx_rrc_OP_660410"),
			Status:     core.StatusActive,
			Commodity:  "crude oil",
		})
		if err != nil {
			return core.IngestStats{}, err
		}
		err = sink.AddProduction(core.ProductionRecord{
			AssetID: "tx_rrc_00004212345678",
			Month:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			OilBBL:  core.Ptr(1234.5),
		})
		return core.IngestStats{}, err
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}

	assert.DeepEqual(t, "status", result.Status, db.ProvenanceSuccess)
	assert.DeepEqual(t, "operators upserted", result.OperatorsUpserted, 1)
	assert.DeepEqual(t, "assets upserted", result.AssetsUpserted, 1)
	assert.DeepEqual(t, "production inserted", result.ProductionInserted, 1)
	assert.DeepEqual(t, "provenance ID", result.ProvenanceID, int64(42))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoaderPartialOnFailedBatch(t *testing.T) {
	loader, mock := setupLoader(t)

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT batch_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO operators").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RELEASE SAVEPOINT batch_1").WillReturnResult(sqlmock.NewResult(0, 0))
	// the production batch hits a foreign key violation and is rolled back to
	// its savepoint; the operator batch must still commit
	mock.ExpectExec("SAVEPOINT batch_2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO production_records").
		WillReturnError(errors.New(`pq: insert or update on table "production_records" violates foreign key constraint`))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT batch_2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	expectProvenanceInsert(mock, 43)

	result, err := loader.Run(context.Background(), "nd_ndic", "https://example.com/prod.csv", func(sink core.RecordSink) (core.IngestStats, error) {
		err := sink.AddOperator(core.Operator{ID: "nd_ndic_OP_1", LegalName: "Continental Resources"})
		if err != nil {
			return core.IngestStats{}, err
		}
		err = sink.AddProduction(core.ProductionRecord{
			AssetID: "nd_ndic_3305312345",
			Month:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			GasMCF:  core.Ptr(987.0),
		})
		return core.IngestStats{SkippedRows: 1}, err
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}

	assert.DeepEqual(t, "status", result.Status, db.ProvenancePartial)
	assert.DeepEqual(t, "operators upserted", result.OperatorsUpserted, 1)
	assert.DeepEqual(t, "production inserted", result.ProductionInserted, 0)
	assert.DeepEqual(t, "error count", len(result.Errors), 1)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoaderFailedRunRollsBack(t *testing.T) {
	loader, mock := setupLoader(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	expectProvenanceInsert(mock, 44)

	result, err := loader.Run(context.Background(), "ok_occ", "https://example.com/wells", func(core.RecordSink) (core.IngestStats, error) {
		return core.IngestStats{}, errors.New("download is truncated")
	})
	if err == nil {
		t.Fatal("expected the ingest error to surface")
	}
	assert.DeepEqual(t, "status", result.Status, db.ProvenanceFailed)
	assert.DeepEqual(t, "provenance ID", result.ProvenanceID, int64(44))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoaderRejectsEmptyProduction(t *testing.T) {
	loader, mock := setupLoader(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	expectProvenanceInsert(mock, 45)

	_, err := loader.Run(context.Background(), "nm_ocd", "", func(sink core.RecordSink) (core.IngestStats, error) {
		err := sink.AddProduction(core.ProductionRecord{AssetID: "nm_ocd_3002512345", Month: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)})
		return core.IngestStats{}, err
	})
	if err == nil {
		t.Fatal("a production record without any volume must be rejected")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoaderResolvesStagedProduction(t *testing.T) {
	loader, mock := setupLoader(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMPORARY TABLE IF NOT EXISTS staged_production").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT batch_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO staged_production").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("RELEASE SAVEPOINT batch_1").WillReturnResult(sqlmock.NewResult(0, 0))
	// two leases inside the same well's window collapse to one row, so the
	// resolve must deduplicate before the upsert
	mock.ExpectExec("SAVEPOINT batch_2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO production_records .* SELECT DISTINCT ON").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RELEASE SAVEPOINT batch_2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	expectProvenanceInsert(mock, 46)

	month := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	result, err := loader.Run(context.Background(), "co_cogcc", "https://example.com/production.csv", func(sink core.RecordSink) (core.IngestStats, error) {
		err := sink.StageProduction(core.StagedProduction{
			Latitude: 40.1, Longitude: -104.9, Month: month, OilBBL: core.Ptr(50.0),
		}, 0.002)
		if err != nil {
			return core.IngestStats{}, err
		}
		err = sink.StageProduction(core.StagedProduction{
			Latitude: 40.1001, Longitude: -104.9001, Month: month, GasMCF: core.Ptr(900.0),
		}, 0.002)
		return core.IngestStats{}, err
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}

	assert.DeepEqual(t, "status", result.Status, db.ProvenanceSuccess)
	assert.DeepEqual(t, "production inserted", result.ProductionInserted, 1)
	assert.DeepEqual(t, "staged dropped", result.StagedDropped, 1)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoaderStopsOnCanceledContext(t *testing.T) {
	loader, mock := setupLoader(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	expectProvenanceInsert(mock, 47)

	ctx, cancel := context.WithCancel(context.Background())
	result, err := loader.Run(ctx, "tx_rrc", "", func(sink core.RecordSink) (core.IngestStats, error) {
		// cancellation arrives mid-run; the next batch must not start
		cancel()
		return core.IngestStats{}, sink.AddOperator(core.Operator{ID: "tx_rrc_OP_1", LegalName: "Apache Corp"})
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assert.DeepEqual(t, "status", result.Status, db.ProvenanceFailed)
	assert.DeepEqual(t, "operators upserted", result.OperatorsUpserted, 0)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMergeAssetsKeepsKnownLocation(t *testing.T) {
	older := core.Asset{ID: "a", Name: "SMITH 1H", Latitude: 31.9, Longitude: -102.1, Status: core.StatusActive}
	newer := core.Asset{ID: "a", Latitude: 0, Longitude: 0, Status: core.StatusShutIn, County: "Midland"}

	merged := mergeAssets(older, newer)
	assert.DeepEqual(t, "latitude", merged.Latitude, 31.9)
	assert.DeepEqual(t, "longitude", merged.Longitude, -102.1)
	// status always follows the newer record
	assert.DeepEqual(t, "status", merged.Status, core.StatusShutIn)
	assert.DeepEqual(t, "county", merged.County, "Midland")
	assert.DeepEqual(t, "name", merged.Name, "SMITH 1H")
}

func TestMergeProductionFillsGaps(t *testing.T) {
	older := core.ProductionRecord{AssetID: "a", OilBBL: core.Ptr(10.0)}
	newer := core.ProductionRecord{AssetID: "a", OilBBL: core.Ptr(99.0), GasMCF: core.Ptr(20.0)}

	merged := mergeProduction(older, newer)
	assert.DeepEqual(t, "oil", *merged.OilBBL, 10.0)
	assert.DeepEqual(t, "gas", *merged.GasMCF, 20.0)
}
