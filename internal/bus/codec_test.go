// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"testing"

	influx "github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fty/metric-compute/internal/aggregation"
)

func TestDecodeSample(t *testing.T) {
	line := []byte("realpower.default,asset=DEV1 value=142.5,unit=\"W\",ttl_s=60i 1700000000\n")
	dec := influx.NewDecoderWithBytes(line)
	require.True(t, dec.Next())

	s, err := DecodeSample(dec)
	require.NoError(t, err)
	assert.Equal(t, "realpower.default", s.Quantity)
	assert.Equal(t, "DEV1", s.Asset)
	assert.InDelta(t, 142.5, s.Value, 1e-9)
	assert.Equal(t, "W", s.Unit)
	assert.Equal(t, int64(60), s.TTLSeconds)
	assert.Equal(t, int64(1700000000), s.TimestampS)
}

func TestEncodeMetricRoundTrips(t *testing.T) {
	e := &aggregation.EmittedMetric{
		Quantity:    "realpower.default",
		Function:    aggregation.ArithmeticMean,
		StepLabel:   "15m",
		StepSeconds: 900,
		Asset:       "DEV1",
		Unit:        "W",
		Value:       108.5,
		Count:       4,
		Sum:         434,
		LastTS:      1700000900,
		TTLSeconds:  1800,
	}

	data, err := EncodeMetric(e)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	dec := influx.NewDecoderWithBytes(data)
	require.True(t, dec.Next())
	measurement, err := dec.Measurement()
	require.NoError(t, err)
	assert.Equal(t, e.Type(), string(measurement))

	foundAsset := false
	for {
		key, val, err := dec.NextTag()
		require.NoError(t, err)
		if key == nil {
			break
		}
		if string(key) == "asset" {
			assert.Equal(t, "DEV1", string(val))
			foundAsset = true
		}
	}
	assert.True(t, foundAsset)
}

func TestAssetEventPurges(t *testing.T) {
	assert.True(t, AssetEvent{Op: "delete"}.Purges())
	assert.True(t, AssetEvent{Op: "retire"}.Purges())
	assert.True(t, AssetEvent{Status: "inactive"}.Purges())
	assert.False(t, AssetEvent{Status: "active"}.Purges())
	assert.False(t, AssetEvent{}.Purges())
}

func TestDecodeAssetEvent(t *testing.T) {
	e, err := DecodeAssetEvent([]byte(`{"asset":"DEV1","op":"retire"}`))
	require.NoError(t, err)
	assert.Equal(t, "DEV1", e.Asset)
	assert.True(t, e.Purges())
}
