// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"fmt"
	"strings"
)

// Function is one of the four supported aggregation functions (spec §3).
type Function string

const (
	Min             Function = "min"
	Max             Function = "max"
	ArithmeticMean  Function = "arithmetic_mean"
	Consumption     Function = "consumption"
)

// Functions lists the four supported functions in the order the built-in
// configuration enumerates them (spec §6 "Built-in configuration").
var Functions = []Function{Min, Max, ArithmeticMean, Consumption}

// ParseFunction validates a function name from configuration.
func ParseFunction(s string) (Function, error) {
	switch Function(s) {
	case Min, Max, ArithmeticMean, Consumption:
		return Function(s), nil
	default:
		return "", fmt.Errorf("unknown aggregation function %q", s)
	}
}

// Sample is a single raw scalar measurement as received from the bus or the
// shared-memory puller (spec §3 "Raw sample").
type Sample struct {
	Quantity    string
	Asset       string
	Value       float64
	Unit        string
	TimestampS  int64
	TTLSeconds  int64
}

// Validate reports the reason a sample must be rejected, or nil if it is
// well-formed. It does not apply the sensor carve-out; see Excluded.
func (s Sample) Validate() error {
	if s.Asset == "" {
		return fmt.Errorf("empty asset name")
	}
	if s.Quantity == "" {
		return fmt.Errorf("empty quantity")
	}
	if Float(s.Value).IsNaN() || !Float(s.Value).IsFinite() {
		return fmt.Errorf("non-finite value %v", s.Value)
	}
	return nil
}

// excludedQuantities are the quantities carved out of aggregation for assets
// matching the sensor-* naming convention (spec §3 "design carve-out").
var excludedQuantities = map[string]bool{
	"temperature.default": true,
	"humidity.default":    true,
}

// Excluded reports whether this (asset, quantity) pair is excluded from
// aggregation entirely: asset name prefixed "sensor-" and quantity one of
// the excluded quantities.
func (s Sample) Excluded() bool {
	return strings.HasPrefix(s.Asset, "sensor-") && excludedQuantities[s.Quantity]
}

// EmittedMetric is a completed aggregation interval, ready for publication
// (spec GLOSSARY "Emitted metric").
type EmittedMetric struct {
	Quantity   string // source quantity, e.g. "realpower.default"
	Function   Function
	StepLabel  string
	StepSeconds int64
	Asset      string
	Unit       string
	Value      Float
	Count      int64
	Sum        Float
	LastTS     int64
	TTLSeconds int64
}

// Type is the published metric type: "<quantity>_<function>_<step_label>".
func (e *EmittedMetric) Type() string {
	return quantityOut(e.Quantity, e.Function, e.StepLabel)
}

// Subject is the publish topic: "<type>@<asset>".
func (e *EmittedMetric) Subject() string {
	return e.Type() + "@" + e.Asset
}

// FormattedValue renders Value with the decimal precision spec.md observes
// in the original: two places for min/max/mean, one place for consumption.
func (e *EmittedMetric) FormattedValue() string {
	if e.Function == Consumption {
		return e.Value.Format(1)
	}
	return e.Value.Format(2)
}

// key is the accumulator map key: "<quantity>_<function>_<step_label>@<asset>".
func key(quantity string, function Function, stepLabel, asset string) string {
	return quantityOut(quantity, function, stepLabel) + "@" + asset
}

// quantityOut is the published metric type without the "@<asset>" suffix.
func quantityOut(quantity string, function Function, stepLabel string) string {
	return quantity + "_" + string(function) + "_" + stepLabel
}
