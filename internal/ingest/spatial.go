// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"fmt"
	"strings"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"
)

// Coordinate-keyed production rows go through a session-local temp table and
// are matched to their nearest asset with a LATERAL join. Doing the match in
// SQL keeps the adapter streaming: it never has to hold the asset table in
// memory.

var createStagingTableQuery = sqlext.SimplifyWhitespace(`
	CREATE TEMPORARY TABLE IF NOT EXISTS staged_production (
		latitude      DOUBLE PRECISION NOT NULL,
		longitude     DOUBLE PRECISION NOT NULL,
		month         TIMESTAMPTZ      NOT NULL,
		oil_volume_bbl DOUBLE PRECISION DEFAULT NULL,
		gas_volume_mcf DOUBLE PRECISION DEFAULT NULL,
		water_cut_pct  DOUBLE PRECISION DEFAULT NULL,
		downtime_days  INTEGER          DEFAULT NULL
	) ON COMMIT DROP
`)

var insertStagedQuery = sqlext.SimplifyWhitespace(`
	INSERT INTO staged_production (latitude, longitude, month, oil_volume_bbl, gas_volume_mcf, water_cut_pct, downtime_days)
	VALUES %s
`)

// The bounding-box predicate on (latitude, longitude) lets Postgres use the
// assets_coords_idx index before the LATERAL ordering kicks in. Distance is
// squared Euclidean in degree space, which is good enough to pick a winner
// inside a window this small. Two staged rows can resolve to the same asset
// (two leases inside one well's window); ON CONFLICT cannot touch a row
// twice in one statement, so DISTINCT ON keeps exactly one row per
// (asset, month), deterministically by staged coordinates.
var resolveStagedQuery = sqlext.SimplifyWhitespace(`
	INSERT INTO production_records (asset_id, month, oil_volume_bbl, gas_volume_mcf, water_cut_pct, downtime_days, created_at)
	SELECT DISTINCT ON (nearest.id, sp.month)
	       nearest.id, sp.month, sp.oil_volume_bbl, sp.gas_volume_mcf, sp.water_cut_pct, sp.downtime_days, $1
	  FROM staged_production sp
	  JOIN LATERAL (
		SELECT a.id
		  FROM assets a
		 WHERE a.latitude  BETWEEN sp.latitude  - $2 AND sp.latitude  + $2
		   AND a.longitude BETWEEN sp.longitude - $2 AND sp.longitude + $2
		   AND NOT (a.latitude = 0 AND a.longitude = 0)
		 ORDER BY power(a.latitude - sp.latitude, 2) + power(a.longitude - sp.longitude, 2)
		 LIMIT 1
	  ) nearest ON true
	 ORDER BY nearest.id, sp.month, sp.latitude, sp.longitude
	ON CONFLICT (asset_id, month) DO UPDATE SET
		oil_volume_bbl = COALESCE(EXCLUDED.oil_volume_bbl, production_records.oil_volume_bbl),
		gas_volume_mcf = COALESCE(EXCLUDED.gas_volume_mcf, production_records.gas_volume_mcf),
		water_cut_pct  = COALESCE(EXCLUDED.water_cut_pct,  production_records.water_cut_pct),
		downtime_days  = COALESCE(EXCLUDED.downtime_days,  production_records.downtime_days)
`)

func (s *txSink) flushStaged() error {
	if len(s.staged) == 0 {
		return nil
	}
	if !s.stagedTableMade {
		_, err := s.tx.Exec(createStagingTableQuery)
		if err != nil {
			return err
		}
		s.stagedTableMade = true
	}

	var (
		placeholders []string
		args         []any
	)
	for _, row := range s.staged {
		placeholders = append(placeholders, makeRowPlaceholder(len(args), 7))
		args = append(args, row.Latitude, row.Longitude, row.Month, row.OilBBL, row.GasMCF, row.WaterCutPct, row.DowntimeDays)
	}
	count, err := s.inBatch("staged production", func() (int64, error) {
		res, err := s.tx.Exec(fmt.Sprintf(insertStagedQuery, strings.Join(placeholders, ", ")), args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return err
	}
	s.stagedTotal += int(count)
	s.staged = s.staged[:0]
	return nil
}

// resolveStagedProduction performs the nearest-asset join for all staged rows
// of this run. Rows without any asset inside the window are dropped (not an
// error: plugging reports and orphaned leases legitimately have no well in
// the database).
func (s *txSink) resolveStagedProduction() error {
	if !s.stagedTableMade {
		return nil
	}
	// pending assets must be visible to the join
	err := s.flushAll()
	if err != nil {
		return err
	}

	count, err := s.inBatch("staged production resolve", func() (int64, error) {
		res, err := s.tx.Exec(resolveStagedQuery, s.now, s.stagedWindow)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return err
	}
	matched := int(count)
	s.result.ProductionInserted += matched
	s.result.StagedDropped = s.stagedTotal - matched
	if s.result.StagedDropped > 0 {
		logg.Info("source %s: %d of %d staged production rows dropped (no asset within %g degrees, or a duplicate well-month)",
			s.sourceTag, s.result.StagedDropped, s.stagedTotal, s.stagedWindow)
	}
	return nil
}
