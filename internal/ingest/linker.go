// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"fmt"
	"regexp"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/petrodata/wellhead/internal/util"
)

// LinkResult reports the outcome of one linker pass.
type LinkResult struct {
	AssetsExamined  int
	AssetsLinked    int
	CrossStateLinks int
	UnmatchedAssets int
	Details         []string
}

type unlinkAssetRow struct {
	ID    string `db:"id"`
	Name  string `db:"name"`
	State string `db:"state"`
}

// Assets whose operator_id is null, or points at an operator that dedup has
// since deleted. The FK is ON DELETE SET NULL, so the second case only covers
// rows written by older schema versions.
var selectUnlinkedAssetsQuery = sqlext.SimplifyWhitespace(`
	SELECT a.id, a.name, a.state FROM assets a
	 WHERE a.operator_id IS NULL
	    OR NOT EXISTS (SELECT 1 FROM operators o WHERE o.id = a.operator_id)
	 ORDER BY a.id
`)

var selectOperatorNamesQuery = sqlext.SimplifyWhitespace(`
	SELECT id, legal_name, aliases FROM operators ORDER BY legal_name, id
`)

var linkAssetQuery = sqlext.SimplifyWhitespace(`
	UPDATE assets SET operator_id = $1, updated_at = NOW() WHERE id = $2
`)

var selectOperatorStateQuery = sqlext.SimplifyWhitespace(`
	SELECT COALESCE(hq_state, '') FROM operators WHERE id = $1
`)

// well names often embed the lease or unit after a separator, e.g.
// "OXY USA INC - SMITH 1H" or "PIONEER #4-22"
var nameSegmentRx = regexp.MustCompile(`[-–—#]`)

// Link assigns operators to assets that came in without one, by matching the
// leading segments of the asset name against the normalized operator name
// index. It runs after Dedup so that the index is free of duplicates.
func Link(dbm *gorp.DbMap) (LinkResult, error) {
	var result LinkResult

	tx, err := dbm.Begin()
	if err != nil {
		return result, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	var operators []operatorRow
	_, err = tx.Select(&operators, selectOperatorNamesQuery)
	if err != nil {
		return result, err
	}
	index := buildOperatorNameIndex(operators)

	var assets []unlinkAssetRow
	_, err = tx.Select(&assets, selectUnlinkedAssetsQuery)
	if err != nil {
		return result, err
	}
	result.AssetsExamined = len(assets)

	for _, asset := range assets {
		operatorID, matchedName := matchOperatorByName(index, asset.Name)
		if operatorID == "" {
			result.UnmatchedAssets++
			continue
		}
		_, err := tx.Exec(linkAssetQuery, operatorID, asset.ID)
		if err != nil {
			return result, err
		}
		result.AssetsLinked++

		var hqState string
		err = tx.SelectOne(&hqState, selectOperatorStateQuery, operatorID)
		if err != nil {
			return result, err
		}
		if hqState != "" && hqState != asset.State {
			result.CrossStateLinks++
		}
		result.Details = append(result.Details, fmt.Sprintf("asset %s (%q) linked to operator %s via %q",
			asset.ID, asset.Name, operatorID, matchedName))
	}

	err = refreshActiveAssetCounts(tx)
	if err != nil {
		return result, err
	}
	err = tx.Commit()
	if err != nil {
		return result, err
	}
	logg.Info("linker: %d of %d unlinked assets matched to an operator (%d had no match)",
		result.AssetsLinked, result.AssetsExamined, result.UnmatchedAssets)
	return result, nil
}

// buildOperatorNameIndex maps normalized legal names and aliases to operator
// IDs. On collision the operator that comes first by legal name wins; the
// input is ordered accordingly.
func buildOperatorNameIndex(operators []operatorRow) map[string]string {
	index := make(map[string]string, len(operators))
	add := func(name, id string) {
		norm := util.NormalizeForMatching(name)
		if norm == "" {
			return
		}
		if _, exists := index[norm]; !exists {
			index[norm] = id
		}
	}
	for _, op := range operators {
		add(op.LegalName, op.ID)
	}
	for _, op := range operators {
		for _, alias := range op.Aliases {
			add(alias, op.ID)
		}
	}
	return index
}

// matchOperatorByName splits the asset name on separator characters and tries
// each segment in order; the first hit wins, so "OXY USA INC - SMITH 1H"
// resolves via the segment before the dash even if "smith" happened to be an
// operator too. The operator may also sit in a later segment, as in
// "SMITH FARMS - OXY USA #3". Cumulative leading fragments are tried last,
// for operator names that themselves contain a separator.
func matchOperatorByName(index map[string]string, assetName string) (operatorID, matchedName string) {
	segments := nameSegmentRx.Split(assetName, -1)
	var candidates []string
	candidates = append(candidates, segments...)
	prefix := ""
	for idx, segment := range segments {
		if prefix == "" {
			prefix = segment
		} else {
			prefix += " " + segment
		}
		if idx > 0 {
			candidates = append(candidates, prefix)
		}
	}
	for _, candidate := range candidates {
		norm := util.NormalizeForMatching(candidate)
		if norm == "" {
			continue
		}
		if id, exists := index[norm]; exists {
			return id, candidate
		}
	}
	return "", ""
}
