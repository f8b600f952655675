// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"os"
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/petrodata/wellhead/internal/core"
)

func TestSchedulerStateRoundTrip(t *testing.T) {
	orch := Orchestrator{Config: core.Configuration{DataDir: t.TempDir()}}

	// a missing state file yields an empty state, not an error
	state := orch.readState()
	assert.DeepEqual(t, "initial sources", len(state.Sources), 0)

	err := orch.recordSourceRun("tx_rrc", true)
	if err != nil {
		t.Fatal(err)
	}
	err = orch.recordSourceRun("ok_occ", false)
	if err != nil {
		t.Fatal(err)
	}

	state = orch.readState()
	assert.DeepEqual(t, "source count", len(state.Sources), 2)
	assert.DeepEqual(t, "tx_rrc status", state.Sources["tx_rrc"].LastStatus, "ok")
	assert.DeepEqual(t, "ok_occ status", state.Sources["ok_occ"].LastStatus, "failed")
	if state.Sources["tx_rrc"].LastRun.IsZero() {
		t.Error("last_run must be recorded")
	}

	// recording again must keep the other source's entry
	err = orch.recordSourceRun("ok_occ", true)
	if err != nil {
		t.Fatal(err)
	}
	state = orch.readState()
	assert.DeepEqual(t, "source count", len(state.Sources), 2)
	assert.DeepEqual(t, "ok_occ status", state.Sources["ok_occ"].LastStatus, "ok")
}

func TestSchedulerStateSurvivesCorruptFile(t *testing.T) {
	orch := Orchestrator{Config: core.Configuration{DataDir: t.TempDir()}}

	err := os.WriteFile(orch.stateFilePath(), []byte("{not json"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	state := orch.readState()
	assert.DeepEqual(t, "sources after corruption", len(state.Sources), 0)

	// and the next write repairs the file
	err = orch.recordSourceRun("nm_ocd", true)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := os.ReadFile(orch.stateFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(buf), `"nm_ocd"`) {
		t.Errorf("state file does not mention the source: %s", string(buf))
	}
}
