// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sharedmem implements the dual-role external collaborator of spec
// §6: a publish sink for emitted metrics, and a pull source scanned by a
// scheduled background worker. Its internal behavior is explicitly
// unspecified, so this package defines the narrow interface the server
// loop drives and a minimal in-process implementation usable standalone
// and in tests; a production deployment backs Store with the real
// shared-memory client.
package sharedmem

import "github.com/fty/metric-compute/internal/aggregation"

// Reading is one value read back from the store by the puller, shaped like
// a bus sample so it can be folded through the same update path (spec §9:
// "the two inputs must converge at the single handle-metric entry point").
type Reading struct {
	Asset      string
	Quantity   string
	Value      float64
	Unit       string
	TimestampS int64
	TTLSeconds int64
}

// Store is the external interface spec §6 names: a publish sink for
// emitted metrics and a pull source for raw readings matching a type
// pattern.
type Store interface {
	// WriteMetric publishes one emitted metric (spec §6 "write_metric").
	WriteMetric(asset, quantity, valueString, unit string, ttlSeconds int64) error
	// ReadMetrics returns every current reading whose asset matches
	// assetPattern and whose quantity matches typePattern (spec §6
	// "read_metrics").
	ReadMetrics(assetPattern, typePattern string) ([]Reading, error)
}

// PublishMetric writes e to store using the wire shape spec §6 describes
// for write_metric: the formatted value string, original unit (or "Ws" for
// consumption), and the metric's own TTL.
func PublishMetric(store Store, e *aggregation.EmittedMetric) error {
	return store.WriteMetric(e.Asset, e.Type(), e.FormattedValue(), e.Unit, e.TTLSeconds)
}
