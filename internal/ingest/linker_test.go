// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"testing"

	"github.com/sapcc/go-bits/assert"
)

func testNameIndex() map[string]string {
	return buildOperatorNameIndex([]operatorRow{
		{ID: "op-oxy", LegalName: "Oxy USA Inc", Aliases: []string{"OXY USA", "OCCIDENTAL PERMIAN"}},
		{ID: "op-pioneer", LegalName: "Pioneer Natural Resources"},
		{ID: "op-smith", LegalName: "Smith Operating LLC"},
	})
}

func TestMatchOperatorByFirstSegment(t *testing.T) {
	index := testNameIndex()

	id, matched := matchOperatorByName(index, "OXY USA - ANDREWS UNIT #12H")
	assert.DeepEqual(t, "operator", id, "op-oxy")
	assert.DeepEqual(t, "matched segment", matched, "OXY USA ")

	// normalization strips corporate suffixes, so the alias form matches too
	id, _ = matchOperatorByName(index, "OCCIDENTAL PERMIAN LTD #4")
	assert.DeepEqual(t, "operator via alias", id, "op-oxy")
}

func TestMatchOperatorPrefersShortestPrefix(t *testing.T) {
	// "SMITH OPERATING - PIONEER NATURAL RESOURCES" must resolve via the
	// segment before the dash, not the longer prefix
	index := testNameIndex()
	id, _ := matchOperatorByName(index, "SMITH OPERATING LLC - PIONEER LEASE #2")
	assert.DeepEqual(t, "operator", id, "op-smith")
}

func TestMatchOperatorInLaterSegment(t *testing.T) {
	// the lease name can come first: the operator is in the second segment
	index := testNameIndex()
	id, matched := matchOperatorByName(index, "SMITH FARMS - OXY USA #3")
	assert.DeepEqual(t, "operator", id, "op-oxy")
	assert.DeepEqual(t, "matched segment", matched, " OXY USA ")
}

func TestMatchOperatorNoSeparator(t *testing.T) {
	index := testNameIndex()
	id, _ := matchOperatorByName(index, "PIONEER NATURAL RESOURCES")
	assert.DeepEqual(t, "operator", id, "op-pioneer")

	id, _ = matchOperatorByName(index, "TOTALLY UNKNOWN WELL 1")
	assert.DeepEqual(t, "operator", id, "")
}

func TestOperatorNameIndexFirstWriterWins(t *testing.T) {
	// input arrives ordered by legal name, so on a normalized collision the
	// alphabetically first operator keeps the entry
	index := buildOperatorNameIndex([]operatorRow{
		{ID: "op-a", LegalName: "Apache Corp"},
		{ID: "op-b", LegalName: "Apache Corporation"},
	})
	id, _ := matchOperatorByName(index, "APACHE CORP")
	assert.DeepEqual(t, "operator", id, "op-a")
}

func TestOperatorNameIndexLegalNamesBeforeAliases(t *testing.T) {
	// a legal name always beats another operator's alias for the same
	// normalized key
	index := buildOperatorNameIndex([]operatorRow{
		{ID: "op-shell", LegalName: "Aera Energy", Aliases: []string{"Chevron USA"}},
		{ID: "op-chevron", LegalName: "Chevron USA Inc"},
	})
	id, _ := matchOperatorByName(index, "CHEVRON USA")
	assert.DeepEqual(t, "operator", id, "op-chevron")
}
