// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package steptable holds the configured tumbling-window lengths (component A
// of the aggregation engine) and exposes their greatest common divisor, which
// the server loop uses as its poll cadence.
package steptable

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fty/metric-compute/pkg/log"
)

// maxStepSeconds is the largest value accepted for a step length: 2^32-1.
const maxStepSeconds = (1 << 32) - 1

// Table holds the set of configured steps, keyed by their label ("15m", "1h",
// ...), together with the running GCD of their numeric values in seconds.
//
// Not safe for concurrent use by itself; callers that share a Table across
// goroutines (the server loop does) must serialize access with their own
// lock, per spec §5 "one process-wide mutex".
type Table struct {
	values map[string]int64
	gcd    int64
}

// New returns an empty step table.
func New() *Table {
	return &Table{values: make(map[string]int64)}
}

// Put parses label using the suffix grammar (bare integer or <n>s/<n>m/<n>h/<n>d)
// and stores label -> seconds, recomputing the GCD. An invalid label (unknown
// suffix, negative, or a value exceeding 2^32-1) is rejected and the table is
// left unchanged.
func (t *Table) Put(label string) error {
	secs, err := ParseLabel(label)
	if err != nil {
		log.Infof("steptable: ignoring step %q: %s", label, err)
		return err
	}

	t.values[label] = secs
	t.recomputeGCD()
	return nil
}

// Get returns the numeric value of label in seconds and whether it is present.
func (t *Table) Get(label string) (int64, bool) {
	secs, ok := t.values[label]
	return secs, ok
}

// GCD returns the greatest common divisor of all configured step values, or 0
// if the table is empty.
func (t *Table) GCD() int64 {
	return t.gcd
}

// Len returns the number of configured steps.
func (t *Table) Len() int {
	return len(t.values)
}

// Each calls fn once per (label, seconds) pair. Iteration order is
// unspecified, matching spec §4.1.
func (t *Table) Each(fn func(label string, seconds int64)) {
	for label, secs := range t.values {
		fn(label, secs)
	}
}

func (t *Table) recomputeGCD() {
	var g int64
	for _, v := range t.values {
		g = gcd(g, v)
	}
	t.gcd = g
}

// gcd computes the greatest common divisor by repeated Euclidean reduction.
// gcd(0, b) == b so an empty accumulation naturally starts at 0 and a
// singleton set reduces to that element.
func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// ParseLabel parses a step label of the form "<n>s", "<n>m", "<n>h", "<n>d",
// or a bare integer (interpreted as seconds), returning its length in
// seconds.
func ParseLabel(label string) (int64, error) {
	if label == "" {
		return 0, fmt.Errorf("empty step label")
	}

	mult := int64(1)
	numPart := label
	switch suffix := label[len(label)-1]; suffix {
	case 's':
		mult = 1
		numPart = label[:len(label)-1]
	case 'm':
		mult = 60
		numPart = label[:len(label)-1]
	case 'h':
		mult = 3600
		numPart = label[:len(label)-1]
	case 'd':
		mult = 86400
		numPart = label[:len(label)-1]
	default:
		if suffix < '0' || suffix > '9' {
			return 0, fmt.Errorf("unknown step suffix in %q", label)
		}
		// Bare integer, no suffix: numPart stays as label, mult stays 1.
	}

	numPart = strings.TrimSpace(numPart)
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid step value in %q: %w", label, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative step value in %q", label)
	}

	secs := n * mult
	if secs > maxStepSeconds || secs/mult != n {
		return 0, fmt.Errorf("step value in %q exceeds 2^32-1 seconds", label)
	}

	return secs, nil
}
