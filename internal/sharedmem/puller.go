// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sharedmem

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/fty/metric-compute/pkg/log"
)

// MetricHandler folds one reading into the aggregation engine with the same
// semantics as an inbound bus sample (spec §4.3 "Shared-memory pull
// sub-task": "invokes s_handle_metric with the same semantics as a bus
// metric, under the same lock as the main loop").
type MetricHandler func(Reading)

// Puller is the cooperative background task that wakes every
// polling_interval_s seconds and scans Store for readings matching the
// configured asset/type patterns, grounded on the teacher's gocron-based
// metric pull worker.
type Puller struct {
	store         Store
	assetPattern  string
	typePattern   string
	handle        MetricHandler
	interval      time.Duration

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewPuller builds a puller that is not yet started.
func NewPuller(store Store, assetPattern, typePattern string, interval time.Duration, handle MetricHandler) *Puller {
	return &Puller{
		store:        store,
		assetPattern: assetPattern,
		typePattern:  typePattern,
		interval:     interval,
		handle:       handle,
	}
}

// Start begins polling, matching the teacher's RegisterMetricPullWorker
// pattern: a single gocron job on a fixed-duration schedule, started
// immediately rather than waiting out the first interval.
func (p *Puller) Start() error {
	if p.interval <= 0 {
		log.Info("sharedmem: puller disabled (interval is zero)")
		return nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = s.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(p.tick),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.scheduler = s
	p.mu.Unlock()

	s.Start()
	log.Infof("sharedmem: puller started (interval: %s)", p.interval)
	return nil
}

// Stop shuts the scheduler down (spec §5 "Cancellation": "puller stopped").
func (p *Puller) Stop() {
	p.mu.Lock()
	s := p.scheduler
	p.scheduler = nil
	p.mu.Unlock()

	if s != nil {
		if err := s.Shutdown(); err != nil {
			log.Warnf("sharedmem: puller shutdown: %s", err)
		}
	}
}

func (p *Puller) tick() {
	readings, err := p.store.ReadMetrics(p.assetPattern, p.typePattern)
	if err != nil {
		log.Errorf("sharedmem: read_metrics failed: %s", err)
		return
	}
	for _, r := range readings {
		p.handle(r)
	}
}
