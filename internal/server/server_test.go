// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fty/metric-compute/internal/aggregation"
	"github.com/fty/metric-compute/internal/bus"
	"github.com/fty/metric-compute/internal/sharedmem"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subjects)
}

func newTestServer(t *testing.T, pub Publisher, steps []string) *Server {
	dir := t.TempDir()
	s, err := New(pub, sharedmem.NewMemStore(), []aggregation.Function{aggregation.Min, aggregation.Max}, steps, dir)
	require.NoError(t, err)
	return s
}

func TestHandleSampleDropsInvalidAndExcluded(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestServer(t, pub, []string{"5s"})

	s.HandleSample(aggregation.Sample{Asset: "", Quantity: "realpower.default", Value: 1})
	s.HandleSample(aggregation.Sample{Asset: "sensor-XYZ", Quantity: "temperature.default", Value: 20})

	assert.Equal(t, 0, pub.count())
}

func TestHandleSampleCreatesAccumulatorsAcrossStepsAndFunctions(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestServer(t, pub, []string{"5s", "10s"})

	s.HandleSample(aggregation.Sample{
		Asset: "DEV1", Quantity: "realpower.default", Value: 100, Unit: "W", TimestampS: time.Now().Unix(),
	})
	// Two steps x two functions = four accumulators, no emission on first sample.
	assert.Equal(t, 4, s.agg.Len())
	assert.Equal(t, 0, pub.count())
}

func TestHandleAssetEventPurgesOnRetire(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestServer(t, pub, []string{"5s"})

	s.HandleSample(aggregation.Sample{Asset: "DEV1", Quantity: "realpower.default", Value: 1, TimestampS: time.Now().Unix()})
	s.HandleAssetEvent(bus.AssetEvent{Asset: "DEV1", Op: "retire"})

	assert.Equal(t, 0, s.agg.Len())
}

func TestHandleAssetEventIgnoresActiveStatus(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestServer(t, pub, []string{"5s"})

	s.HandleSample(aggregation.Sample{Asset: "DEV1", Quantity: "realpower.default", Value: 1, TimestampS: time.Now().Unix()})
	s.HandleAssetEvent(bus.AssetEvent{Asset: "DEV1", Status: "active"})

	assert.NotEqual(t, 0, s.agg.Len())
}

func TestNextIntervalZeroWhenNoSteps(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestServer(t, pub, nil)
	assert.Equal(t, time.Duration(0), s.NextInterval(time.Now()))
}

func TestNextIntervalAlignsToGCD(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestServer(t, pub, []string{"5s", "10s"})

	now := time.Unix(1_700_000_103, 0) // gcd=5, 103 mod 5 = 3
	d := s.NextInterval(now)
	assert.Equal(t, 2*time.Second, d)
}

func TestTickCheckspointsAlways(t *testing.T) {
	pub := &recordingPublisher{}
	dir := t.TempDir()
	s, err := New(pub, sharedmem.NewMemStore(), []aggregation.Function{aggregation.Consumption}, []string{"5s"}, dir)
	require.NoError(t, err)

	s.HandleSample(aggregation.Sample{Asset: "DEV1", Quantity: "realpower.default", Value: 100, TimestampS: time.Now().Unix()})
	s.Tick()

	_, err = os.Stat(filepath.Join(dir, "state.zpl"))
	require.NoError(t, err)
}

func TestTickPublishesOnceIntervalHasElapsed(t *testing.T) {
	pub := &recordingPublisher{}
	dir := t.TempDir()
	s, err := New(pub, sharedmem.NewMemStore(), []aggregation.Function{aggregation.Consumption}, []string{"1s"}, dir)
	require.NoError(t, err)

	s.HandleSample(aggregation.Sample{Asset: "DEV1", Quantity: "realpower.default", Value: 100, TimestampS: time.Now().Unix()})
	time.Sleep(1100 * time.Millisecond)
	s.Tick()

	assert.Equal(t, 1, pub.count())
}

func TestTickWritesSharedMemoryAlongsideBusPublish(t *testing.T) {
	pub := &recordingPublisher{}
	store := sharedmem.NewMemStore()
	dir := t.TempDir()
	s, err := New(pub, store, []aggregation.Function{aggregation.Consumption}, []string{"1s"}, dir)
	require.NoError(t, err)

	s.HandleSample(aggregation.Sample{Asset: "DEV1", Quantity: "realpower.default", Value: 100, TimestampS: time.Now().Unix()})
	time.Sleep(1100 * time.Millisecond)
	s.Tick()

	assert.Equal(t, 1, pub.count())
	assert.Len(t, store.Written(), 1)
}
