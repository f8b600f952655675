// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"fmt"
	"sort"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/lib/pq"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/petrodata/wellhead/internal/util"
)

// DedupConfig controls one deduplication pass.
type DedupConfig struct {
	// Maximum Levenshtein distance between normalized names that still counts
	// as the same operator.
	FuzzyThreshold int
	// Assets from different sources within this coordinate window (degrees,
	// each axis) are considered the same physical well.
	ProximityDeg float64
	// DryRun computes and reports everything, then rolls back.
	DryRun bool
}

// DedupResult reports what one deduplication pass did (or, in dry-run mode,
// would have done).
type DedupResult struct {
	OperatorGroups    int
	OperatorsMerged   int
	AssetsMerged      int
	CrossStateMatches int
	Details           []string
}

type operatorRow struct {
	ID        string         `db:"id"`
	LegalName string         `db:"legal_name"`
	Aliases   pq.StringArray `db:"aliases"`
}

type assetCoordRow struct {
	ID         string  `db:"id"`
	State      string  `db:"state"`
	OperatorID string  `db:"operator_id"`
	Latitude   float64 `db:"latitude"`
	Longitude  float64 `db:"longitude"`
}

var selectOperatorsForDedupQuery = sqlext.SimplifyWhitespace(`
	SELECT id, legal_name, aliases FROM operators ORDER BY legal_name, id
`)

// Only assets of the same operator are candidates for a proximity merge;
// two distinct operators legitimately drill wells on the same pad.
var selectAssetCoordsQuery = sqlext.SimplifyWhitespace(`
	SELECT id, state, operator_id, latitude, longitude FROM assets
	 WHERE operator_id IS NOT NULL
	   AND NOT (latitude = 0 AND longitude = 0)
	 ORDER BY operator_id, latitude, longitude, id
`)

// Dedup merges duplicate operators and duplicate assets in one transaction.
// Operator identity is name-based (exact normalized match, alias overlap, or
// bounded fuzzy match); asset identity is coordinate-based. All of it happens
// inside a single transaction so a dry run can roll the whole thing back.
func Dedup(dbm *gorp.DbMap, cfg DedupConfig) (DedupResult, error) {
	var result DedupResult

	tx, err := dbm.Begin()
	if err != nil {
		return result, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	var operators []operatorRow
	_, err = tx.Select(&operators, selectOperatorsForDedupQuery)
	if err != nil {
		return result, err
	}

	groups := groupDuplicateOperators(operators, cfg.FuzzyThreshold)
	for _, group := range groups {
		err := mergeOperatorGroup(tx, group, &result)
		if err != nil {
			return result, err
		}
	}
	result.OperatorGroups = len(groups)

	var assets []assetCoordRow
	_, err = tx.Select(&assets, selectAssetCoordsQuery)
	if err != nil {
		return result, err
	}
	err = mergeProximateAssets(tx, assets, cfg.ProximityDeg, &result)
	if err != nil {
		return result, err
	}

	err = refreshActiveAssetCounts(tx)
	if err != nil {
		return result, err
	}

	if cfg.DryRun {
		logg.Info("dedup dry run: %d operator groups, %d operators and %d assets would be merged (rolling back)",
			result.OperatorGroups, result.OperatorsMerged, result.AssetsMerged)
		return result, nil
	}
	return result, tx.Commit()
}

// groupDuplicateOperators partitions the operator list into groups that refer
// to the same company. Only groups with more than one member are returned,
// each sorted by legal name with the canonical survivor first.
//
// The relation is built with union-find over three kinds of edges:
//   - identical normalized legal names,
//   - a normalized alias of one equals the normalized legal name or any
//     alias of another,
//   - normalized legal names within fuzzyThreshold edit distance.
func groupDuplicateOperators(operators []operatorRow, fuzzyThreshold int) [][]operatorRow {
	parent := make([]int, len(operators))
	for idx := range parent {
		parent[idx] = idx
	}
	var find func(int) int
	find = func(idx int) int {
		if parent[idx] != idx {
			parent[idx] = find(parent[idx])
		}
		return parent[idx]
	}
	union := func(a, b int) {
		rootA, rootB := find(a), find(b)
		if rootA != rootB {
			parent[rootB] = rootA
		}
	}

	// exact matches on normalized legal name or alias
	byNormalized := make(map[string]int)
	normalized := make([]string, len(operators))
	for idx, op := range operators {
		norm := util.NormalizeForMatching(op.LegalName)
		normalized[idx] = norm
		if norm == "" {
			continue
		}
		if other, exists := byNormalized[norm]; exists {
			union(other, idx)
		} else {
			byNormalized[norm] = idx
		}
	}
	// aliases participate on both sides: an alias of one operator matching
	// the legal name or any alias of another is the same company
	for idx, op := range operators {
		for _, alias := range op.Aliases {
			norm := util.NormalizeForMatching(alias)
			if norm == "" {
				continue
			}
			if other, exists := byNormalized[norm]; exists {
				union(other, idx)
			} else {
				byNormalized[norm] = idx
			}
		}
	}

	// fuzzy matches; the length prefilter in BoundedLevenshtein keeps this
	// quadratic loop affordable at real-world operator counts
	if fuzzyThreshold > 0 {
		for i := range operators {
			if normalized[i] == "" {
				continue
			}
			for j := i + 1; j < len(operators); j++ {
				if normalized[j] == "" || find(i) == find(j) {
					continue
				}
				if _, ok := util.BoundedLevenshtein(normalized[i], normalized[j], fuzzyThreshold); ok {
					union(i, j)
				}
			}
		}
	}

	members := make(map[int][]operatorRow)
	for idx, op := range operators {
		root := find(idx)
		members[root] = append(members[root], op)
	}
	var groups [][]operatorRow
	for _, group := range members {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].LegalName != group[j].LegalName {
				return group[i].LegalName < group[j].LegalName
			}
			return group[i].ID < group[j].ID
		})
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].ID < groups[j][0].ID })
	return groups
}

var mergeOperatorAliasesQuery = sqlext.SimplifyWhitespace(`
	UPDATE operators
	   SET aliases = ARRAY(SELECT DISTINCT alias FROM unnest(aliases || $2::text[]) AS alias ORDER BY alias),
	       updated_at = NOW()
	 WHERE id = $1
`)

var remapAssetOperatorQuery = sqlext.SimplifyWhitespace(`
	UPDATE assets SET operator_id = $1, updated_at = NOW() WHERE operator_id = ANY($2)
`)

var deleteOperatorsQuery = sqlext.SimplifyWhitespace(`
	DELETE FROM operators WHERE id = ANY($1)
`)

func mergeOperatorGroup(tx *gorp.Transaction, group []operatorRow, result *DedupResult) error {
	canonical := group[0]

	var extraAliases []string
	duplicateIDs := make([]string, 0, len(group)-1)
	for _, dup := range group[1:] {
		duplicateIDs = append(duplicateIDs, dup.ID)
		extraAliases = append(extraAliases, dup.LegalName)
		extraAliases = append(extraAliases, dup.Aliases...)
		result.Details = append(result.Details, fmt.Sprintf("operator %s (%q) merged into %s (%q)",
			dup.ID, dup.LegalName, canonical.ID, canonical.LegalName))
	}

	_, err := tx.Exec(mergeOperatorAliasesQuery, canonical.ID, pq.Array(dedupStrings(extraAliases)))
	if err != nil {
		return err
	}
	_, err = tx.Exec(remapAssetOperatorQuery, canonical.ID, pq.Array(duplicateIDs))
	if err != nil {
		return err
	}
	_, err = tx.Exec(deleteOperatorsQuery, pq.Array(duplicateIDs))
	if err != nil {
		return err
	}
	result.OperatorsMerged += len(duplicateIDs)
	return nil
}

// When a duplicate asset's production would collide with a month the survivor
// already has, the survivor's row wins and the duplicate's is discarded with
// the asset (via ON DELETE CASCADE).
var remapProductionQuery = sqlext.SimplifyWhitespace(`
	UPDATE production_records pr SET asset_id = $1
	 WHERE pr.asset_id = $2
	   AND NOT EXISTS (SELECT 1 FROM production_records x WHERE x.asset_id = $1 AND x.month = pr.month)
`)

var remapFinancialsQuery = sqlext.SimplifyWhitespace(`
	UPDATE financial_estimates SET asset_id = $1 WHERE asset_id = $2
`)

var remapSavedItemsQuery = sqlext.SimplifyWhitespace(`
	UPDATE saved_items si SET asset_id = $1
	 WHERE si.asset_id = $2
	   AND NOT EXISTS (SELECT 1 FROM saved_items x WHERE x.asset_id = $1 AND x.user_id = si.user_id)
`)

var deleteAssetQuery = sqlext.SimplifyWhitespace(`
	DELETE FROM assets WHERE id = $1
`)

// mergeProximateAssets folds assets that sit within the proximity window of
// an earlier (surviving) asset of the same operator. The input is ordered by
// (operator, coordinates), so one forward scan with a sliding latitude window
// finds every pair.
func mergeProximateAssets(tx *gorp.Transaction, assets []assetCoordRow, windowDeg float64, result *DedupResult) error {
	merged := make(map[string]bool)
	low := 0
	for i, asset := range assets {
		if merged[asset.ID] {
			continue
		}
		for low < i && (assets[low].OperatorID != asset.OperatorID || assets[low].Latitude < asset.Latitude-windowDeg) {
			low++
		}
		for j := low; j < i; j++ {
			survivor := assets[j]
			if merged[survivor.ID] {
				continue
			}
			if survivor.Longitude < asset.Longitude-windowDeg || survivor.Longitude > asset.Longitude+windowDeg {
				continue
			}

			err := mergeAssetInto(tx, survivor.ID, asset.ID)
			if err != nil {
				return err
			}
			merged[asset.ID] = true
			result.AssetsMerged++
			if survivor.State != asset.State {
				result.CrossStateMatches++
				result.Details = append(result.Details, fmt.Sprintf(
					"assets %s (%s) and %s (%s) merged across a state boundary at (%.5f, %.5f)",
					survivor.ID, survivor.State, asset.ID, asset.State, asset.Latitude, asset.Longitude))
			} else {
				result.Details = append(result.Details, fmt.Sprintf("asset %s merged into %s", asset.ID, survivor.ID))
			}
			break
		}
	}
	return nil
}

func mergeAssetInto(tx *gorp.Transaction, survivorID, duplicateID string) error {
	_, err := tx.Exec(remapProductionQuery, survivorID, duplicateID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(remapFinancialsQuery, survivorID, duplicateID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(remapSavedItemsQuery, survivorID, duplicateID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(deleteAssetQuery, duplicateID)
	return err
}

var refreshActiveAssetCountsQuery = sqlext.SimplifyWhitespace(`
	UPDATE operators o SET active_asset_count = sub.cnt
	  FROM (SELECT operator_id, COUNT(*) FILTER (WHERE status = 'active') AS cnt
	          FROM assets WHERE operator_id IS NOT NULL GROUP BY operator_id) sub
	 WHERE o.id = sub.operator_id AND o.active_asset_count != sub.cnt
`)

func refreshActiveAssetCounts(tx *gorp.Transaction) error {
	_, err := tx.Exec(refreshActiveAssetCountsQuery)
	return err
}
