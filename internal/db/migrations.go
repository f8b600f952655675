// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package db

var sqlMigrations = map[string]string{
	"001_initial.down.sql": `
		DROP TABLE saved_items;
		DROP TABLE users;
		DROP TABLE data_provenance;
		DROP TABLE financial_estimates;
		DROP TABLE production_records;
		DROP TABLE assets;
		DROP TABLE operators;
	`,
	"001_initial.up.sql": `
		CREATE TABLE operators (
			id                  TEXT        NOT NULL PRIMARY KEY,
			legal_name          TEXT        NOT NULL,
			aliases             TEXT[]      NOT NULL DEFAULT '{}',
			hq_state            TEXT        DEFAULT NULL,
			hq_city             TEXT        DEFAULT NULL,
			active_asset_count  INTEGER     NOT NULL DEFAULT 0,
			compliance_flags    TEXT[]      NOT NULL DEFAULT '{}',
			risk_score          REAL        DEFAULT NULL,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE assets (
			id                               TEXT        NOT NULL PRIMARY KEY,
			asset_type                       TEXT        NOT NULL,
			name                             TEXT        NOT NULL,
			state                            TEXT        NOT NULL,
			county                           TEXT        NOT NULL DEFAULT '',
			latitude                         DOUBLE PRECISION NOT NULL DEFAULT 0,
			longitude                        DOUBLE PRECISION NOT NULL DEFAULT 0,
			basin                            TEXT        DEFAULT NULL,
			operator_id                      TEXT        DEFAULT NULL REFERENCES operators ON DELETE SET NULL,
			status                           TEXT        NOT NULL DEFAULT 'inactive',
			spud_date                        TIMESTAMPTZ DEFAULT NULL,
			depth_ft                         DOUBLE PRECISION DEFAULT NULL,
			commodity                        TEXT        NOT NULL DEFAULT '',
			decline_rate                     DOUBLE PRECISION DEFAULT NULL,
			estimated_remaining_life_months  INTEGER     DEFAULT NULL,
			created_at                       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at                       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX assets_operator_idx ON assets (operator_id);
		CREATE INDEX assets_state_idx ON assets (state);
		CREATE INDEX assets_coords_idx ON assets (latitude, longitude);

		CREATE TABLE production_records (
			id              BIGSERIAL   NOT NULL PRIMARY KEY,
			asset_id        TEXT        NOT NULL REFERENCES assets ON DELETE CASCADE,
			month           TIMESTAMPTZ NOT NULL,
			oil_volume_bbl  DOUBLE PRECISION DEFAULT NULL,
			gas_volume_mcf  DOUBLE PRECISION DEFAULT NULL,
			ore_volume_tons DOUBLE PRECISION DEFAULT NULL,
			water_cut_pct   DOUBLE PRECISION DEFAULT NULL,
			downtime_days   INTEGER     DEFAULT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (asset_id, month)
		);

		-- written by the financial calculator, read here only so that asset
		-- merges can remap instead of orphaning these rows
		CREATE TABLE financial_estimates (
			id              BIGSERIAL   NOT NULL PRIMARY KEY,
			asset_id        TEXT        NOT NULL REFERENCES assets ON DELETE CASCADE,
			npv_usd         DOUBLE PRECISION DEFAULT NULL,
			monthly_revenue_usd DOUBLE PRECISION DEFAULT NULL,
			as_of_date      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE data_provenance (
			id           BIGSERIAL   NOT NULL PRIMARY KEY,
			source_name  TEXT        NOT NULL,
			source_url   TEXT        NOT NULL DEFAULT '',
			ingested_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			record_count INTEGER     NOT NULL DEFAULT 0,
			status       TEXT        NOT NULL,
			notes        TEXT        NOT NULL DEFAULT ''
		);

		-- owned by the read-side API; part of the shared schema contract
		CREATE TABLE users (
			id            BIGSERIAL   NOT NULL PRIMARY KEY,
			email         TEXT        NOT NULL UNIQUE,
			password_hash TEXT        NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE saved_items (
			id         BIGSERIAL   NOT NULL PRIMARY KEY,
			user_id    BIGINT      NOT NULL REFERENCES users ON DELETE CASCADE,
			asset_id   TEXT        NOT NULL REFERENCES assets ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, asset_id)
		);
	`,
}
