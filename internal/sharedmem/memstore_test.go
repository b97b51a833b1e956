// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sharedmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fty/metric-compute/internal/aggregation"
)

func TestReadMetricsMatchesPatternsAndExcludesOwnOutput(t *testing.T) {
	s := NewMemStore()
	s.Put(Reading{Asset: "DEV1", Quantity: "realpower.default", Value: 100, TimestampS: 1})
	s.Put(Reading{Asset: "DEV1", Quantity: "realpower.default_arithmetic_mean_15m", Value: 90, TimestampS: 1})
	s.Put(Reading{Asset: "DEV1", Quantity: "humidity.default", Value: 40, TimestampS: 1})
	s.Put(Reading{Asset: "sensor-XYZ", Quantity: "realpower.default", Value: 1, TimestampS: 1})

	readings, err := s.ReadMetrics("^DEV1$", DefaultTypePattern)
	require.NoError(t, err)

	var quantities []string
	for _, r := range readings {
		quantities = append(quantities, r.Quantity)
	}
	assert.ElementsMatch(t, []string{"realpower.default", "humidity.default"}, quantities)
}

func TestIsOwnOutput(t *testing.T) {
	assert.True(t, IsOwnOutput("realpower.default_arithmetic_mean_15m"))
	assert.True(t, IsOwnOutput("realpower.default_consumption_30s"))
	assert.False(t, IsOwnOutput("realpower.default"))
}

func TestWriteMetricRecordsPublication(t *testing.T) {
	s := NewMemStore()
	e := &aggregation.EmittedMetric{
		Quantity: "realpower.default", Function: aggregation.Min, StepLabel: "15m",
		Asset: "DEV1", Unit: "W", Value: 42, TTLSeconds: 1800,
	}
	require.NoError(t, PublishMetric(s, e))

	written := s.Written()
	require.Len(t, written, 1)
	assert.Equal(t, "DEV1", written[0].asset)
	assert.Equal(t, "realpower.default_min_15m", written[0].quantity)
	assert.Equal(t, "42.00", written[0].value)
}

func TestPullerDisabledWithZeroInterval(t *testing.T) {
	p := NewPuller(NewMemStore(), ".*", ".*", 0, func(Reading) {})
	require.NoError(t, p.Start())
	p.Stop()
}
