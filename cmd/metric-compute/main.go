// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	influx "github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/google/gops/agent"

	"github.com/fty/metric-compute/internal/aggregation"
	"github.com/fty/metric-compute/internal/bus"
	"github.com/fty/metric-compute/internal/config"
	"github.com/fty/metric-compute/internal/server"
	"github.com/fty/metric-compute/internal/sharedmem"
	"github.com/fty/metric-compute/pkg/log"
)

func main() {
	var flagEndpoint, flagConfigFile string
	var flagVerbose, flagGops bool
	flag.StringVar(&flagEndpoint, "endpoint", "", "Overwrite the configured bus endpoint `url` (default "+config.DefaultEndpoint+")")
	flag.StringVar(&flagEndpoint, "e", "", "Shorthand for -endpoint")
	flag.BoolVar(&flagVerbose, "verbose", false, "Enable verbose (debug-level) logging")
	flag.BoolVar(&flagVerbose, "v", false, "Shorthand for -verbose")
	flag.StringVar(&flagConfigFile, "config", "", "Load configuration overrides from `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err)
		}
	}

	config.Init(flagConfigFile)
	if flagEndpoint != "" {
		config.Keys.Bus.Address = flagEndpoint
	} else if config.Keys.Bus.Address == "" {
		config.Keys.Bus.Address = config.Keys.Endpoint
	}
	if flagVerbose {
		config.Keys.Verbose = true
	}

	if config.Keys.Verbose {
		log.SetLogLevel("debug")
	} else {
		log.SetLogLevel("info")
	}

	functions, err := parseFunctions(config.Keys.Functions)
	if err != nil {
		log.Fatalf("startup: %s", err)
	}

	if err := os.MkdirAll(config.Keys.PersistDir, 0o755); err != nil {
		log.Fatalf("startup: create persist dir: %s", err)
	}

	busClient, err := bus.Connect(config.Keys.Bus)
	if err != nil {
		log.Fatalf("startup: bus connect: %s", err)
	}
	defer busClient.Close()

	store := sharedmem.NewMemStore()

	srv, err := server.New(busClient, store, functions, config.Keys.Steps, config.Keys.PersistDir,
		server.WithPuller(store, config.Keys.SharedMemAssetRE, config.Keys.SharedMemTypeRE,
			secondsToDuration(config.Keys.PollingIntervalS)))
	if err != nil {
		log.Fatalf("startup: %s", err)
	}

	if err := busClient.Subscribe(config.Keys.SubscribePattern, func(subject string, data []byte) {
		routeBusMessage(srv, subject, data)
	}); err != nil {
		log.Fatalf("startup: subscribe: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigs
		log.Info("shutting down")
		cancel()
	}()

	wg.Wait()
}

func parseFunctions(names []string) ([]aggregation.Function, error) {
	out := make([]aggregation.Function, 0, len(names))
	for _, n := range names {
		fn, err := aggregation.ParseFunction(n)
		if err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, nil
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

// routeBusMessage dispatches one inbound bus frame: it first tries to
// decode it as an asset-lifecycle event, falling back to a raw sample
// (spec §4.3 "Unknown message types or ill-formed protocol frames are
// logged and dropped").
func routeBusMessage(srv *server.Server, subject string, data []byte) {
	if e, err := bus.DecodeAssetEvent(data); err == nil && e.Asset != "" {
		srv.HandleAssetEvent(e)
		return
	}

	dec := influx.NewDecoderWithBytes(data)
	if !dec.Next() {
		log.Warnf("bus: dropping unparseable message on %q", subject)
		return
	}
	sample, err := bus.DecodeSample(dec)
	if err != nil {
		log.Warnf("bus: dropping malformed sample on %q: %s", subject, err)
		return
	}
	srv.HandleSample(sample)
}
