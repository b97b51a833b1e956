// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sharedmem

import (
	"regexp"
	"sync"
)

// MemStore is an in-process Store: a simple map keyed by asset, holding the
// most recent reading per quantity. It exists for tests and for running
// the engine without an external shared-memory backend; a production
// deployment supplies its own Store wired to the actual IPC segment.
type MemStore struct {
	mu       sync.Mutex
	readings map[string]map[string]Reading // asset -> quantity -> reading
	written  []writtenMetric

	compiled compiledPatterns
}

// compiledPatterns caches the last-compiled asset/type regexes, since the
// puller calls ReadMetrics with the same two patterns on every poll
// (spec §4.3 "wakes every polling_interval_s seconds").
type compiledPatterns struct {
	assetSrc, typeSrc string
	assetRe, typeRe   *regexp.Regexp
}

type writtenMetric struct {
	asset, quantity, value, unit string
	ttlSeconds                   int64
}

// NewMemStore returns an empty in-process store.
func NewMemStore() *MemStore {
	return &MemStore{readings: make(map[string]map[string]Reading)}
}

// Put seeds a reading the puller will later discover via ReadMetrics. Tests
// use this to simulate external writers populating the shared segment.
func (s *MemStore) Put(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readings[r.Asset] == nil {
		s.readings[r.Asset] = make(map[string]Reading)
	}
	s.readings[r.Asset][r.Quantity] = r
}

// WriteMetric implements Store.
func (s *MemStore) WriteMetric(asset, quantity, valueString, unit string, ttlSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, writtenMetric{asset, quantity, valueString, unit, ttlSeconds})
	return nil
}

// Written returns every metric published via WriteMetric so far, for tests.
func (s *MemStore) Written() []writtenMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]writtenMetric, len(s.written))
	copy(out, s.written)
	return out
}

// ReadMetrics implements Store. Both patterns are compiled with Go's RE2
// regexp package, which rejects look-ahead; quantities that IsOwnOutput
// recognizes are excluded regardless of typePattern.
func (s *MemStore) ReadMetrics(assetPattern, typePattern string) ([]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.compiled.assetSrc != assetPattern || s.compiled.typeSrc != typePattern {
		assetRe, err := regexp.Compile(assetPattern)
		if err != nil {
			return nil, err
		}
		typeRe, err := regexp.Compile(typePattern)
		if err != nil {
			return nil, err
		}
		s.compiled = compiledPatterns{assetSrc: assetPattern, typeSrc: typePattern, assetRe: assetRe, typeRe: typeRe}
	}
	assetRe, typeRe := s.compiled.assetRe, s.compiled.typeRe

	var out []Reading
	for asset, byQuantity := range s.readings {
		if !assetRe.MatchString(asset) {
			continue
		}
		for quantity, r := range byQuantity {
			if typeRe.MatchString(quantity) && !IsOwnOutput(quantity) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}
