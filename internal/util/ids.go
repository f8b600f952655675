// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"crypto/sha256"
	"strings"
	"unicode"

	"github.com/gofrs/uuid"
)

// DeterministicUUID derives a UUID-shaped string from (namespace, key) via
// SHA-256. The version nibble is forced to 4 and the variant bits to RFC
// 4122, so the output is indistinguishable from a random v4 UUID while being
// byte-identical across machines and runs. Asset identity for sources without
// an API number depends on this.
func DeterministicUUID(namespace, key string) string {
	sum := sha256.Sum256([]byte(namespace + ":" + key))
	buf := sum[:16]
	buf[6] = (buf[6] & 0x0F) | 0x40
	buf[8] = (buf[8] & 0x3F) | 0x80
	u, err := uuid.FromBytes(buf)
	if err != nil {
		// FromBytes only fails on wrong slice length
		panic(err)
	}
	return u.String()
}

// PadAPINumber strips everything but digits from a raw API well number and
// left-pads the result with zeros to the given width. Sources format the same
// API number with and without dashes and leading zeros; identity construction
// must not care.
func PadAPINumber(raw string, width int) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	for len(digits) < width {
		digits = "0" + digits
	}
	return digits
}

// AssetIDFromAPI builds the deterministic asset identifier for API-bearing
// sources: `<SOURCE_TAG>_<zero-padded API number>`.
func AssetIDFromAPI(sourceTag, rawAPI string, width int) string {
	return sourceTag + "_" + PadAPINumber(rawAPI, width)
}

// AssetIDFromKey builds the deterministic asset identifier for sources
// without API numbers: `<SOURCE_TAG>_<SHA-256(source_key) as UUID>`.
func AssetIDFromKey(sourceTag, sourceKey string) string {
	return sourceTag + "_" + DeterministicUUID(sourceTag, sourceKey)
}

// OperatorIDFromNumber builds the operator identifier for sources that assign
// operator numbers.
func OperatorIDFromNumber(sourceTag, operatorNumber string) string {
	return sourceTag + "_OP_" + strings.TrimSpace(operatorNumber)
}

// OperatorIDFromName builds the operator identifier for sources that only
// provide a name.
func OperatorIDFromName(sourceTag, name string) string {
	return sourceTag + "_OP_" + NormalizeForMatching(name)
}
