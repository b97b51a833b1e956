// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aggregation implements component B of the aggregation engine: the
// per-key accumulator map that folds raw samples into tumbling-window
// summaries and flushes them to the publication and persistence paths.
package aggregation

import (
	"sync"

	"github.com/fty/metric-compute/pkg/log"
)

// Map owns every accumulator. It is the in-memory state the server loop
// drives on every sample, tick, and asset-lifecycle event (spec §4.2).
//
// Map is safe for concurrent use: all accessors take an internal mutex. The
// server loop in spec §5 additionally scopes a single process-wide lock
// across the step table and the map together; Map's own lock is sufficient
// when Map is the only shared mutable state a caller touches.
type Map struct {
	mu   sync.Mutex
	accs map[string]*accumulator
}

// NewMap returns an empty aggregation map.
func NewMap() *Map {
	return &Map{accs: make(map[string]*accumulator)}
}

// Len returns the number of live accumulators. Intended for tests and
// diagnostics.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accs)
}

// Update folds sample into the accumulator for (sample.Asset, sample.Quantity,
// function, stepLabel), creating it if absent. now is the caller-supplied
// wall-clock second, injected rather than read from time.Now so interval
// arithmetic is deterministic under test.
//
// It returns the just-closed interval's EmittedMetric when sample arrives
// past the end of the accumulator's current window (spec §4.2.1); otherwise
// it returns nil.
func (m *Map) Update(function Function, stepLabel string, stepSeconds int64, sample Sample, now int64) *EmittedMetric {
	k := key(sample.Quantity, function, stepLabel, sample.Asset)
	start := alignedStart(now, stepSeconds)

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accs[k]
	if !ok {
		acc = &accumulator{
			quantity:    sample.Quantity,
			function:    function,
			stepLabel:   stepLabel,
			stepSeconds: stepSeconds,
			asset:       sample.Asset,
			ttlSeconds:  2 * stepSeconds,
			intervalStart: start,
		}
		if function == Consumption {
			acc.unit = "Ws"
			acc.value = 0
			acc.sum = Float(sample.Value) // last known power
			// lastSampleTS tracks now_s, not sample.TimestampS, for every
			// consumption branch (create/in-interval/rollover): it is the
			// reference point for the next integration delta, not an
			// ordering timestamp. A consumption sample whose timestamp is
			// not later than the wall-clock second of the previous fold is
			// therefore dropped by the late-sample guard.
			acc.lastSampleTS = now
			acc.count = 1
		} else {
			acc.unit = sample.Unit
			acc.value = Float(sample.Value)
			acc.sum = Float(sample.Value)
			acc.count = 1
			acc.lastSampleTS = sample.TimestampS
		}
		m.accs[k] = acc
		return nil
	}

	// Late-sample guard (invariant 4).
	if sample.TimestampS <= acc.lastSampleTS {
		log.Debugf("aggregation: dropping out-of-order sample for %s (ts=%d <= last=%d)", k, sample.TimestampS, acc.lastSampleTS)
		return nil
	}

	// Interval-end check.
	if now-acc.intervalStart >= acc.stepSeconds {
		emitted := acc.snapshot()

		if function == Consumption {
			deltaTail := minI64(acc.stepSeconds, maxI64(0, start-acc.lastSampleTS))
			emitted.Value += acc.sum * Float(deltaTail)

			deltaHead := maxI64(0, now-start)
			acc.value = Float(sample.Value) * Float(deltaHead)
			acc.sum = Float(sample.Value)
			acc.lastSampleTS = now
			acc.count = 1
			acc.intervalStart = start
		} else {
			acc.intervalStart = start
			acc.count = 1
			acc.sum = Float(sample.Value)
			acc.value = Float(sample.Value)
			acc.lastSampleTS = sample.TimestampS
		}

		return emitted
	}

	// In-interval update.
	switch function {
	case Min:
		if acc.count == 0 || Float(sample.Value) < acc.value {
			acc.value = Float(sample.Value)
		}
	case Max:
		if acc.count == 0 || Float(sample.Value) > acc.value {
			acc.value = Float(sample.Value)
		}
	case ArithmeticMean:
		newSum := acc.sum + Float(sample.Value)
		newVal := newSum / Float(acc.count+1)
		if newSum.IsNaN() || newVal.IsNaN() {
			log.Warnf("aggregation: NaN produced folding sample into %s, dropping step", k)
			return nil
		}
		acc.sum = newSum
		acc.value = newVal
	case Consumption:
		lastPower := acc.sum
		lastTS := acc.lastSampleTS
		delta := maxI64(0, now-lastTS)
		add := lastPower * Float(delta)
		if add.IsNaN() || (acc.value + add).IsNaN() {
			log.Warnf("aggregation: NaN produced integrating consumption for %s, dropping step", k)
			return nil
		}
		acc.sum = Float(sample.Value)
		acc.value += add
		acc.lastSampleTS = now
	}

	acc.count++
	if function != Consumption {
		acc.lastSampleTS = sample.TimestampS
	}
	return nil
}

// Poll flushes every accumulator whose interval has ended as of now,
// resetting it for the next window (spec §4.2.2). min/max/mean accumulators
// with no samples this interval are reset but not returned — the newest
// in-tree behavior per spec §9's open-question resolution. consumption
// accumulators always emit.
func (m *Map) Poll(now int64) []*EmittedMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*EmittedMetric
	for _, acc := range m.accs {
		if now-acc.intervalStart < acc.stepSeconds {
			continue
		}
		start := alignedStart(now, acc.stepSeconds)

		if acc.function == Consumption {
			deltaTail := minI64(acc.stepSeconds, maxI64(0, start-acc.lastSampleTS))
			emitted := acc.snapshot()
			emitted.Value += acc.sum * Float(deltaTail)
			out = append(out, emitted)

			deltaHead := maxI64(0, now-start)
			acc.value = acc.sum * Float(deltaHead)
			acc.lastSampleTS = now
			acc.count = 1
			acc.intervalStart = start
			continue
		}

		if acc.count > 0 {
			out = append(out, acc.snapshot())
		}
		acc.intervalStart = start
		acc.sum = 0
		acc.value = 0
		acc.count = 0
	}
	return out
}

// DeleteAsset removes every accumulator belonging to asset (spec §4.2.3,
// driven by asset "delete"/"retire"/non-active lifecycle events).
func (m *Map) DeleteAsset(asset string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, acc := range m.accs {
		if acc.asset == asset {
			delete(m.accs, k)
		}
	}
}
