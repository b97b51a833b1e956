// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the engine's runtime configuration
// (spec §6 "Built-in configuration", §1 "runtime config file loading" is
// listed as out of scope for the aggregation engine itself but is ambient
// infrastructure every entry point needs).
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/fty/metric-compute/internal/bus"
	"github.com/fty/metric-compute/internal/sharedmem"
	"github.com/fty/metric-compute/pkg/log"
)

// DefaultFunctions are the four aggregation functions enabled out of the
// box (spec §6 "Built-in configuration").
var DefaultFunctions = []string{"min", "max", "arithmetic_mean", "consumption"}

// DefaultSteps are the seven tumbling window lengths enabled out of the box.
var DefaultSteps = []string{"15m", "30m", "1h", "8h", "24h", "7d", "30d"}

// DefaultPersistDir is where the state file lives absent configuration.
const DefaultPersistDir = "/var/lib/fty/fty-metric-compute"

// DefaultEndpoint matches the CLI default (spec §6 "CLI surface").
const DefaultEndpoint = "ipc://@/malamute"

// DefaultSubscribePattern is the asset-stream subscription (spec §6 "Bus
// client": "Subscribe ... with pattern .*").
const DefaultSubscribePattern = ">"

// DefaultPollingIntervalS is how often the shared-memory puller wakes when
// no explicit interval is configured.
const DefaultPollingIntervalS = 60

// Config is the engine's complete runtime configuration.
type Config struct {
	Endpoint         string     `json:"endpoint"`
	Verbose          bool       `json:"verbose"`
	Functions        []string   `json:"functions"`
	Steps            []string   `json:"steps"`
	PersistDir       string     `json:"persist-dir"`
	SubscribePattern string     `json:"subscribe-pattern"`
	PollingIntervalS int64      `json:"polling-interval-s"`
	SharedMemAssetRE string     `json:"sharedmem-asset-pattern"`
	SharedMemTypeRE  string     `json:"sharedmem-type-pattern"`
	Bus              bus.Config `json:"bus"`
}

// Keys holds the process-wide configuration loaded via Init. Every entry
// point reads through this singleton, matching the teacher's global
// schema.ProgramConfig pattern.
var Keys = Default()

// Default returns the built-in configuration, used when no config file is
// present (spec §6) and as the base that an explicit file's fields
// override piecemeal.
func Default() Config {
	return Config{
		Endpoint:         DefaultEndpoint,
		Functions:        append([]string(nil), DefaultFunctions...),
		Steps:            append([]string(nil), DefaultSteps...),
		PersistDir:       DefaultPersistDir,
		SubscribePattern: DefaultSubscribePattern,
		PollingIntervalS: DefaultPollingIntervalS,
		SharedMemAssetRE: ".*",
		SharedMemTypeRE:  sharedmem.DefaultTypePattern,
		Bus:              bus.Config{Identity: bus.DefaultIdentity},
	}
}

// ConfigSchema validates the on-disk JSON config document before it is
// decoded into Config (spec's ambient config-file loading, modeled on the
// teacher's own jsonschema-gated Init).
const ConfigSchema = `{
    "type": "object",
    "description": "Configuration for the metric aggregation engine.",
    "properties": {
        "endpoint": { "type": "string" },
        "verbose": { "type": "boolean" },
        "functions": { "type": "array", "items": { "type": "string" } },
        "steps": { "type": "array", "items": { "type": "string" } },
        "persist-dir": { "type": "string" },
        "subscribe-pattern": { "type": "string" },
        "polling-interval-s": { "type": "integer", "minimum": 0 },
        "sharedmem-asset-pattern": { "type": "string" },
        "sharedmem-type-pattern": { "type": "string" },
        "bus": ` + bus.ConfigSchema + `
    }
}`

// Init loads configuration from flagConfigFile on top of Default(), exactly
// as the teacher's Init loads cc-backend's config.json on top of its own
// built-in defaults: a missing file is not an error, but a malformed one is
// fatal at startup (spec §7: "Startup failure ... log fatal, exit non-zero").
func Init(flagConfigFile string) {
	if flagConfigFile == "" {
		return
	}

	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Fatalf("config: read %s: %s", flagConfigFile, err)
	}

	if err := Validate(ConfigSchema, raw); err != nil {
		log.Fatalf("config: validate %s: %s", flagConfigFile, err)
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		log.Fatalf("config: decode %s: %s", flagConfigFile, err)
	}
	Keys = cfg
}
