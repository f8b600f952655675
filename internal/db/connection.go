// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"database/sql"
	"net/url"
	"os"
	"regexp"

	"github.com/dlmiddlecote/sqlstats"
	gorp "github.com/go-gorp/gorp/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/osext"
	"github.com/sapcc/go-bits/sqlext"
)

// Configuration returns the easypg.Configuration object that func Init()
// needs to initialize the DB connection.
func Configuration() easypg.Configuration {
	return easypg.Configuration{
		Migrations: sqlMigrations,
	}
}

func buildURL() (url.URL, error) {
	return easypg.URLFrom(easypg.URLParts{
		HostName:          osext.GetenvOrDefault("WELLHEAD_DB_HOSTNAME", "localhost"),
		Port:              osext.GetenvOrDefault("WELLHEAD_DB_PORT", "5432"),
		UserName:          osext.GetenvOrDefault("WELLHEAD_DB_USERNAME", "postgres"),
		Password:          os.Getenv("WELLHEAD_DB_PASSWORD"),
		ConnectionOptions: os.Getenv("WELLHEAD_DB_CONNECTION_OPTIONS"),
		DatabaseName:      osext.GetenvOrDefault("WELLHEAD_DB_NAME", "wellhead"),
	})
}

// Init initializes the connection to the database and applies pending
// migrations.
func Init() (*sql.DB, error) {
	dbURL, err := buildURL()
	if err != nil {
		return nil, err
	}
	dbConn, err := easypg.Connect(dbURL, Configuration())
	if err != nil {
		return nil, err
	}
	prometheus.MustRegister(sqlstats.NewStatsCollector("wellhead", dbConn))
	return dbConn, nil
}

var dbNotExistErrRx = regexp.MustCompile(`^pq: database "([^"]+)" does not exist$`)

// CreateDatabaseIfNotExist connects to the server's maintenance database and
// creates the configured database if it is missing. Used by the migrate task.
func CreateDatabaseIfNotExist() error {
	dbURL, err := buildURL()
	if err != nil {
		return err
	}

	dbConn, err := sql.Open("postgres", dbURL.String())
	if err == nil {
		// the "database does not exist" error only occurs when trying to issue
		// the first statement
		_, err = dbConn.Exec("SELECT 1")
	}
	if err == nil {
		return dbConn.Close()
	}
	match := dbNotExistErrRx.FindStringSubmatch(err.Error())
	if match == nil {
		return err
	}
	dbName := match[1]

	maintenanceURL := dbURL
	maintenanceURL.Path = "/"
	dbConn, err = sql.Open("postgres", maintenanceURL.String())
	if err != nil {
		return err
	}
	defer dbConn.Close()

	_, err = dbConn.Exec("CREATE DATABASE " + dbName)
	return err
}

// InitORM wraps a database connection into a gorp.DbMap instance.
func InitORM(dbConn *sql.DB) *gorp.DbMap {
	// ensure that one ingestion run does not starve a concurrently running
	// scheduler process for DB connections
	dbConn.SetMaxOpenConns(16)

	dbMap := &gorp.DbMap{Db: dbConn, Dialect: gorp.PostgresDialect{}}
	initGorp(dbMap)
	return dbMap
}

// Interface provides the common methods that both SQL connections and
// transactions implement.
type Interface interface {
	// from database/sql
	sqlext.Executor

	// from github.com/go-gorp/gorp
	Insert(args ...any) error
	Update(args ...any) (int64, error)
	Delete(args ...any) (int64, error)
	Select(i any, query string, args ...any) ([]any, error)
	SelectOne(holder any, query string, args ...any) error
}
