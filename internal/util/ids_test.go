// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"regexp"
	"testing"

	"github.com/sapcc/go-bits/assert"
)

var uuidShapeRx = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestDeterministicUUID(t *testing.T) {
	first := DeterministicUUID("la_ldnr", "241363")
	second := DeterministicUUID("la_ldnr", "241363")
	assert.DeepEqual(t, "repeated invocation", second, first)

	if !uuidShapeRx.MatchString(first) {
		t.Errorf("%q is not shaped like a v4 UUID", first)
	}
	if other := DeterministicUUID("la_ldnr", "241364"); other == first {
		t.Error("different keys must yield different UUIDs")
	}
	if other := DeterministicUUID("nd_ndic", "241363"); other == first {
		t.Error("different namespaces must yield different UUIDs")
	}
}

func TestPadAPINumber(t *testing.T) {
	cases := map[string]string{
		"42-003-12345":   "00004200312345",
		"4200312345":     "00004200312345",
		"04200312345":    "00004200312345",
		"42003123450000": "42003123450000",
	}
	for input, expected := range cases {
		assert.DeepEqual(t, "PadAPINumber("+input+")", PadAPINumber(input, 14), expected)
	}
}

func TestAssetIDConstruction(t *testing.T) {
	assert.DeepEqual(t, "AssetIDFromAPI",
		AssetIDFromAPI("tx_rrc", "42-003-12345", 14), "tx_rrc_00004200312345")

	fromKey := AssetIDFromKey("la_ldnr", "241363")
	if fromKey != "la_ldnr_"+DeterministicUUID("la_ldnr", "241363") {
		t.Errorf("unexpected keyed asset ID: %q", fromKey)
	}

	assert.DeepEqual(t, "OperatorIDFromNumber",
		OperatorIDFromNumber("tx_rrc", " 123456 "), "tx_rrc_OP_123456")
	assert.DeepEqual(t, "OperatorIDFromName",
		OperatorIDFromName("nd_ndic", "Continental Resources, Inc."), "nd_ndic_OP_continentalresources")
}
