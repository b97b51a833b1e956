// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server implements component C of the aggregation engine: the
// wall-clock-aligned tick scheduler, bus/asset/metric intake routing, and
// checkpointing (spec §4.3). It is the thin collaborator that drives
// components A and B; it owns no aggregation logic of its own.
package server

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fty/metric-compute/internal/aggregation"
	"github.com/fty/metric-compute/internal/bus"
	"github.com/fty/metric-compute/internal/sharedmem"
	"github.com/fty/metric-compute/internal/steptable"
	"github.com/fty/metric-compute/pkg/log"
)

// Publisher is the minimal bus surface the loop needs, satisfied by
// *bus.Client; accepting an interface keeps the loop testable without a
// live connection.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Server owns the step table, the aggregation map, and the single
// process-wide lock spec §5 describes ("all access to the aggregation map,
// the step table, and the state file is serialized behind one process-wide
// mutex").
type Server struct {
	mu sync.Mutex

	steps     *steptable.Table
	functions []aggregation.Function
	agg       *aggregation.Map

	publisher Publisher
	store     sharedmem.Store
	statePath string

	puller *sharedmem.Puller
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithPuller attaches the shared-memory pull sub-task (spec §4.3
// "Shared-memory pull sub-task"); Run starts it when it begins and stops it
// when it returns.
func WithPuller(store sharedmem.Store, assetPattern, typePattern string, interval time.Duration) Option {
	return func(s *Server) {
		s.puller = sharedmem.NewPuller(store, assetPattern, typePattern, interval, func(r sharedmem.Reading) {
			s.HandleSample(aggregation.Sample{
				Quantity:   r.Quantity,
				Asset:      r.Asset,
				Value:      r.Value,
				Unit:       r.Unit,
				TimestampS: r.TimestampS,
				TTLSeconds: r.TTLSeconds,
			})
		})
	}
}

// New builds a server with the given functions and steps, loading any
// existing checkpoint from stateDir/state.zpl (spec §4.2.4, §6 "State
// file"). A missing checkpoint is not an error. store is the shared-memory
// publish sink every emitted metric is written to via write_metric (spec §6
// "Shared-memory store (dual role: publish sink and pull source)"), in
// addition to the bus send; pass the same store to WithPuller to also use
// it as the pull source.
func New(publisher Publisher, store sharedmem.Store, functions []aggregation.Function, stepLabels []string, stateDir string, opts ...Option) (*Server, error) {
	steps := steptable.New()
	for _, label := range stepLabels {
		if err := steps.Put(label); err != nil {
			log.Infof("server: ignoring unknown step label %q: %s", label, err)
		}
	}

	statePath := filepath.Join(stateDir, "state.zpl")
	agg, err := aggregation.Load(statePath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		steps:     steps,
		functions: functions,
		agg:       agg,
		publisher: publisher,
		store:     store,
		statePath: statePath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleSample routes one raw sample through every configured
// (function, step) pair (spec §4.3 "On a bus metric") and publishes every
// completed interval it closes. Excluded samples (sensor carve-out) and
// invalid samples are dropped and logged per spec §7.
func (s *Server) HandleSample(sample aggregation.Sample) {
	if err := sample.Validate(); err != nil {
		log.Warnf("server: dropping invalid sample for %s@%s: %s", sample.Quantity, sample.Asset, err)
		return
	}
	if sample.Excluded() {
		log.Tracef("server: sensor carve-out excludes %s@%s", sample.Quantity, sample.Asset)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	s.steps.Each(func(label string, seconds int64) {
		for _, fn := range s.functions {
			if emitted := s.agg.Update(fn, label, seconds, sample, now); emitted != nil {
				s.publish(emitted)
			}
		}
	})
}

// HandleAssetEvent purges every accumulator for the named asset when the
// event is a delete/retire/non-active transition (spec §4.3 "On an asset
// event").
func (s *Server) HandleAssetEvent(e bus.AssetEvent) {
	if !e.Purges() {
		log.Tracef("server: ignoring non-purging asset event for %q (op=%q status=%q)", e.Asset, e.Op, e.Status)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agg.DeleteAsset(e.Asset)
	log.Infof("server: purged accumulators for asset %q (op=%q status=%q)", e.Asset, e.Op, e.Status)
}

// Tick runs one scheduled poll-publish-checkpoint cycle (spec §4.3 "On a
// tick").
func (s *Server) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	for _, emitted := range s.agg.Poll(now) {
		s.publish(emitted)
	}
	if err := s.agg.Save(s.statePath); err != nil {
		log.Errorf("server: checkpoint failed: %s", err)
	}
}

// publish sends emitted onto the bus and writes it into the shared-memory
// store (spec §6 "Publish: write_metric(...) for every emitted metric"). A
// failure on either sink is logged and that metric is lost on that sink
// (spec §7 "Bus send failure ... continue; metric is lost"); the two sinks
// are independent, so a shared-memory write failure does not suppress the
// bus send or vice versa.
func (s *Server) publish(emitted *aggregation.EmittedMetric) {
	data, err := bus.EncodeMetric(emitted)
	if err != nil {
		log.Errorf("server: encode %s failed: %s", emitted.Subject(), err)
		return
	}
	if err := s.publisher.Publish(emitted.Subject(), data); err != nil {
		log.Errorf("server: publish %s failed: %s", emitted.Subject(), err)
	}
	if s.store != nil {
		if err := sharedmem.PublishMetric(s.store, emitted); err != nil {
			log.Errorf("server: shared-memory write_metric %s failed: %s", emitted.Subject(), err)
		}
	}
}

// NextInterval computes the wait interval aligned to the next GCD boundary
// (spec §4.3 "Scheduling"). A zero step table yields 0, signaling the
// caller to block indefinitely.
func (s *Server) NextInterval(now time.Time) time.Duration {
	s.mu.Lock()
	gcd := s.steps.GCD()
	s.mu.Unlock()

	if gcd <= 0 {
		return 0
	}
	nowS := now.Unix()
	return time.Duration(gcd-(nowS%gcd)) * time.Second
}

// Run drives the scheduling loop until ctx is canceled, matching the
// teacher's signal-driven shutdown shape in cmd/cc-backend/main.go. It
// starts the shared-memory puller (if configured) and stops it on exit.
func (s *Server) Run(ctx context.Context) {
	if s.puller != nil {
		if err := s.puller.Start(); err != nil {
			log.Errorf("server: starting shared-memory puller: %s", err)
		}
	}
	defer func() {
		if s.puller != nil {
			s.puller.Stop()
		}
	}()

	for {
		interval := s.NextInterval(time.Now())
		if interval <= 0 {
			// No steps configured: block indefinitely until shutdown
			// (spec §4.3 "If no steps are configured (gcd == 0), it
			// blocks indefinitely").
			<-ctx.Done()
			s.Tick()
			log.Info("server: final checkpoint written, shutting down")
			return
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.Tick()
			log.Info("server: final checkpoint written, shutting down")
			return
		case <-timer.C:
			// The tick-starvation guard (spec §4.3 trigger 2) is not wired
			// as a separate check here; see SPEC_FULL.md's open-question
			// decisions for why it is structurally unreachable under this
			// package's concurrency model.
			s.Tick()
		}
	}
}
