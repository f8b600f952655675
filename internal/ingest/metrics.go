// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordsUpsertedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wellhead_last_run_records",
			Help: "Number of records upserted by the most recent ingestion run, by source and record kind.",
		},
		[]string{"source", "kind"},
	)
	parseErrorsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wellhead_last_run_parse_errors",
			Help: "Number of rows that failed to parse during the most recent ingestion run.",
		},
		[]string{"source"},
	)
	lastRunTimestampGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wellhead_last_run_timestamp_seconds",
			Help: "UNIX timestamp of the most recent ingestion run, by source and outcome.",
		},
		[]string{"source", "status"},
	)
	runDurationSecsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wellhead_last_run_duration_seconds",
			Help: "Duration of the most recent ingestion run.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(recordsUpsertedGauge)
	prometheus.MustRegister(parseErrorsGauge)
	prometheus.MustRegister(lastRunTimestampGauge)
	prometheus.MustRegister(runDurationSecsGauge)
}

func recordLoadMetrics(result LoadResult) {
	labels := prometheus.Labels{"source": result.Source}
	recordsUpsertedGauge.With(prometheus.Labels{"source": result.Source, "kind": "asset"}).Set(float64(result.AssetsUpserted))
	recordsUpsertedGauge.With(prometheus.Labels{"source": result.Source, "kind": "operator"}).Set(float64(result.OperatorsUpserted))
	recordsUpsertedGauge.With(prometheus.Labels{"source": result.Source, "kind": "production"}).Set(float64(result.ProductionInserted))
	parseErrorsGauge.With(labels).Set(float64(result.Stats.ParseErrors))
	lastRunTimestampGauge.With(prometheus.Labels{"source": result.Source, "status": string(result.Status)}).SetToCurrentTime()
	runDurationSecsGauge.With(labels).Set(result.Duration.Seconds())
}
