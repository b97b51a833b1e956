// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sharedmem

import "strings"

// DefaultTypePattern is the positive half of spec §6's pull type pattern:
//
//	(^realpower\.default|^power\.default|current\.(output|input)\.L(1|2|3)|
//	 voltage\.(output|input)\.L(1|2|3)-N|voltage\.input\.(1|2)|.*temperature|.*humidity)
//	((?!_arithmetic_mean_|_max_|_min_|_consumption_).)*
//
// Go's regexp package is RE2-based and cannot express the trailing negative
// look-ahead, so it is split out: DefaultTypePattern is the positive match,
// and ownOutputMarkers lists the substrings the look-ahead excludes.
// IsOwnOutput applies that exclusion explicitly. This keeps the engine from
// re-aggregating the metrics it just published (spec §6: "prevents the
// engine from aggregating its own outputs").
const DefaultTypePattern = `^realpower\.default|^power\.default|current\.(output|input)\.L(1|2|3)|voltage\.(output|input)\.L(1|2|3)-N|voltage\.input\.(1|2)|.*temperature|.*humidity`

var ownOutputMarkers = []string{"_arithmetic_mean_", "_max_", "_min_", "_consumption_"}

// IsOwnOutput reports whether quantity looks like something this engine
// itself published, and so should never be re-ingested by the puller.
func IsOwnOutput(quantity string) bool {
	for _, marker := range ownOutputMarkers {
		if strings.Contains(quantity, marker) {
			return true
		}
	}
	return false
}
