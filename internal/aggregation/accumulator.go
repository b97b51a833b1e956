// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

// accumulator is the per-key mutable aggregation state (spec §3
// "Accumulator"). Exactly one exists per (asset, quantity, function, step)
// key at any instant (invariant 1).
type accumulator struct {
	quantity  string // source quantity, copied from the first sample
	function  Function
	stepLabel string
	stepSeconds int64
	asset     string
	unit      string

	value Float // running result; for consumption, watt-seconds so far
	sum   Float // mean: running sum; consumption: last accepted power

	intervalStart int64 // wall-clock left edge of the current window
	count         int64
	lastSampleTS  int64
	ttlSeconds    int64
}

// quantityOut returns the published metric type for this accumulator.
func (a *accumulator) quantityOut() string {
	return quantityOut(a.quantity, a.function, a.stepLabel)
}

// snapshot copies the accumulator's current state into an EmittedMetric,
// used both when an interval closes under Map.Update and when Map.Poll
// flushes a stale interval.
func (a *accumulator) snapshot() *EmittedMetric {
	return &EmittedMetric{
		Quantity:    a.quantity,
		Function:    a.function,
		StepLabel:   a.stepLabel,
		StepSeconds: a.stepSeconds,
		Asset:       a.asset,
		Unit:        a.unit,
		Value:       a.value,
		Count:       a.count,
		Sum:         a.sum,
		LastTS:      a.lastSampleTS,
		TTLSeconds:  a.ttlSeconds,
	}
}

// alignedStart returns floor(now/step)*step, the left edge of the window
// containing now.
func alignedStart(now, step int64) int64 {
	if step <= 0 {
		return now
	}
	return (now / step) * step
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
