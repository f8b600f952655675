// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sapcc/go-bits/logg"
)

// RunScheduled blocks and runs the full pipeline (all sources, then dedup,
// then link) on the configured cron expression, until ctx is cancelled.
// afterIngest runs after each complete ingestion pass; the command layer
// plugs the dedup and link steps in there.
func (o Orchestrator) RunScheduled(ctx context.Context, afterIngest func(context.Context)) error {
	schedule := cron.New()
	_, err := schedule.AddFunc(o.Config.Schedule.Cron, func() {
		logg.Info("scheduled ingestion run starting")
		_, err := o.RunSources(ctx, nil, true)
		if err != nil {
			logg.Error("scheduled ingestion run finished with errors: %s", err.Error())
		}
		if afterIngest != nil {
			afterIngest(ctx)
		}
	})
	if err != nil {
		return err
	}

	logg.Info("scheduler started with cron expression %q", o.Config.Schedule.Cron)
	schedule.Start()
	<-ctx.Done()
	logg.Info("scheduler shutting down")

	// let an in-flight run finish its current source
	<-schedule.Stop().Done()
	return nil
}
