// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baseTS is divisible by every step used below (1, 3, 5, 10, 30) so interval
// alignment in each test starts exactly at baseTS and boundary arithmetic
// isn't obscured by an arbitrary phase offset.
const baseTS int64 = 1_700_000_100

func sampleAt(quantity, asset string, value float64, ts int64) Sample {
	return Sample{Quantity: quantity, Asset: asset, Value: value, Unit: "W", TimestampS: ts, TTLSeconds: 60}
}

func TestUpdateFirstSampleCreatesAccumulatorNoEmit(t *testing.T) {
	m := NewMap()
	emitted := m.Update(Min, "5s", 5, sampleAt("realpower.default", "DEV1", 100, baseTS), baseTS)
	assert.Nil(t, emitted)
	assert.Equal(t, 1, m.Len())
}

func TestUpdateMinMaxMeanWithinWindow(t *testing.T) {
	mMin := NewMap()
	mMax := NewMap()
	mMean := NewMap()

	values := []float64{100, 50, 42, 242}
	for i, v := range values {
		ts := baseTS + int64(i)
		require.Nil(t, mMin.Update(Min, "5s", 5, sampleAt("realpower.default", "DEV1", v, ts), baseTS))
		require.Nil(t, mMax.Update(Max, "5s", 5, sampleAt("realpower.default", "DEV1", v, ts), baseTS))
		require.Nil(t, mMean.Update(ArithmeticMean, "5s", 5, sampleAt("realpower.default", "DEV1", v, ts), baseTS))
	}

	emittedMin := mMin.Poll(baseTS + 5)
	emittedMax := mMax.Poll(baseTS + 5)
	emittedMean := mMean.Poll(baseTS + 5)

	require.Len(t, emittedMin, 1)
	require.Len(t, emittedMax, 1)
	require.Len(t, emittedMean, 1)

	assert.Equal(t, "42.00", emittedMin[0].FormattedValue())
	assert.Equal(t, "242.00", emittedMax[0].FormattedValue())
	assert.Equal(t, "108.50", emittedMean[0].FormattedValue())
}

func TestUpdateRolloverOnLateSample(t *testing.T) {
	m := NewMap()
	require.Nil(t, m.Update(Min, "3s", 3, sampleAt("realpower.default", "DEV1", 100, baseTS), baseTS))
	// Folds into the same window: still before the 3s boundary.
	require.Nil(t, m.Update(Min, "3s", 3, sampleAt("realpower.default", "DEV1", 50, baseTS+1), baseTS+1))

	// This sample lands exactly on the window boundary: it must close the
	// first interval (reporting its min, 50) and start a new one instead of
	// folding in place.
	emitted := m.Update(Min, "3s", 3, sampleAt("realpower.default", "DEV1", 142, baseTS+3), baseTS+3)
	require.NotNil(t, emitted)
	assert.Equal(t, "50.00", emitted.FormattedValue())

	emitted2 := m.Update(Min, "3s", 3, sampleAt("realpower.default", "DEV1", 242, baseTS+4), baseTS+4)
	assert.Nil(t, emitted2)

	final := m.Poll(baseTS + 6)
	require.Len(t, final, 1)
	assert.Equal(t, "142.00", final[0].FormattedValue())
}

func TestLateSampleGuardDropsNonIncreasingTimestamp(t *testing.T) {
	m := NewMap()
	require.Nil(t, m.Update(Min, "10s", 10, sampleAt("realpower.default", "DEV1", 100, baseTS), baseTS))
	emitted := m.Update(Min, "10s", 10, sampleAt("realpower.default", "DEV1", 1, baseTS), baseTS)
	assert.Nil(t, emitted)

	polled := m.Poll(baseTS + 10)
	require.Len(t, polled, 1)
	// The duplicate-timestamp sample must have been dropped, not folded in.
	assert.Equal(t, "100.00", polled[0].FormattedValue())
	assert.Equal(t, int64(1), polled[0].Count)
}

func TestNaNSampleRejected(t *testing.T) {
	s := sampleAt("realpower.default", "DEV1", math.NaN(), baseTS)
	require.Error(t, s.Validate())
}

func TestSensorCarveOutExcludesTemperatureAndHumidity(t *testing.T) {
	s := sampleAt("temperature.default", "sensor-XYZ", 20, baseTS)
	assert.True(t, s.Excluded())

	s2 := sampleAt("humidity.default", "sensor-XYZ", 40, baseTS)
	assert.True(t, s2.Excluded())

	s3 := sampleAt("realpower.default", "sensor-XYZ", 40, baseTS)
	assert.False(t, s3.Excluded())

	s4 := sampleAt("temperature.default", "DEV1", 20, baseTS)
	assert.False(t, s4.Excluded())
}

func TestConsumptionAcrossOneBoundary(t *testing.T) {
	m := NewMap()
	const step = int64(30)

	// First power sample opens the interval at T+0.
	require.Nil(t, m.Update(Consumption, "30s", step, sampleAt("realpower.default", "DEV1", 100, baseTS), baseTS))
	// Power changes to 150W at T+15.
	require.Nil(t, m.Update(Consumption, "30s", step, sampleAt("realpower.default", "DEV1", 150, baseTS+15), baseTS+15))
	// Power changes to 200W at T+25.
	require.Nil(t, m.Update(Consumption, "30s", step, sampleAt("realpower.default", "DEV1", 200, baseTS+25), baseTS+25))

	polled := m.Poll(baseTS + 30)
	require.Len(t, polled, 1)
	// 100*15 + 150*10 + 200*5 = 1500+1500+1000 = 4000.0 Ws
	assert.Equal(t, "4000.0", polled[0].FormattedValue())
	assert.Equal(t, "Ws", polled[0].Unit)
}

func TestConsumptionAlwaysEmitsOnPollEvenWithoutSamples(t *testing.T) {
	m := NewMap()
	require.Nil(t, m.Update(Consumption, "10s", 10, sampleAt("realpower.default", "DEV1", 100, baseTS), baseTS))

	emitted := m.Poll(baseTS + 10)
	require.Len(t, emitted, 1)
	assert.Equal(t, "1000.0", emitted[0].FormattedValue())
}

func TestMinMaxMeanSkipPublishWhenNoSamplesThisInterval(t *testing.T) {
	m := NewMap()
	require.Nil(t, m.Update(Min, "5s", 5, sampleAt("realpower.default", "DEV1", 10, baseTS), baseTS))
	// Close out the interval explicitly via Poll with no further samples.
	first := m.Poll(baseTS + 5)
	require.Len(t, first, 1)

	// No samples arrive in the next interval; a second poll past its end
	// must not emit anything for a min/max/mean accumulator.
	second := m.Poll(baseTS + 10)
	assert.Empty(t, second)
}

func TestDeleteAssetRemovesOnlyThatAssetsAccumulators(t *testing.T) {
	m := NewMap()
	m.Update(Min, "5s", 5, sampleAt("realpower.default", "DEV1", 1, baseTS), baseTS)
	m.Update(Min, "5s", 5, sampleAt("realpower.default", "DEV2", 2, baseTS), baseTS)

	m.DeleteAsset("DEV1")

	assert.Equal(t, 1, m.Len())
	polled := m.Poll(baseTS + 5)
	require.Len(t, polled, 1)
	assert.Equal(t, "DEV2", polled[0].Asset)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := NewMap()
	m.Update(Min, "5s", 5, sampleAt("realpower.default", "DEV1", 10, baseTS), baseTS)
	m.Update(Max, "5s", 5, sampleAt("realpower.default", "DEV1", 20, baseTS), baseTS)
	m.Update(Consumption, "30s", 30, sampleAt("realpower.default", "DEV1", 100, baseTS), baseTS)

	path := filepath.Join(t.TempDir(), "state.zpl")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Len(), loaded.Len())

	polled := loaded.Poll(baseTS + 30)
	// The two min/max accumulators are due from +5s and the consumption
	// accumulator from +30s; polling at +30s puts all three past their
	// window end.
	assert.NotEmpty(t, polled)
}

func TestLoadMissingFileReturnsEmptyMap(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "does-not-exist.zpl"))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}
