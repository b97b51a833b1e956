// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"math"
	"strconv"
)

// Float is a NaN-aware float64, the numeric type of every accumulator field
// that is "stringly typed" on the wire (spec §9 "Stringly-typed values").
// Values are kept as float64 internally and formatted only when published or
// checkpointed, matching the teacher's schema.Float (which serializes NaN as
// JSON null rather than rejecting it outright).
type Float float64

// NaN is the canonical not-a-number Float value.
var NaN = Float(math.NaN())

// IsNaN reports whether f is not-a-number.
func (f Float) IsNaN() bool { return math.IsNaN(float64(f)) }

// IsFinite reports whether f is neither NaN nor +/-Inf.
func (f Float) IsFinite() bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Format renders f with the given number of decimal places. A NaN value
// formats as "nan" so a corrupt record is recognizable rather than silently
// coerced to zero.
func (f Float) Format(decimals int) string {
	if f.IsNaN() {
		return "nan"
	}
	return strconv.FormatFloat(float64(f), 'f', decimals, 64)
}

// ParseFloat parses s as a Float. "nan" (case-insensitive, as emitted by
// strconv and by the sample decoder) parses to a NaN Float rather than an
// error so callers can apply the NaN-rejection rules themselves.
func ParseFloat(s string) (Float, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return Float(v), nil
}
