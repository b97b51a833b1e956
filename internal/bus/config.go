// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bus wraps the telemetry message bus connection (spec §6 "Bus
// client"). It is a thin collaborator, not part of the aggregation engine
// proper: its internal behavior beyond connect/subscribe/publish is
// unspecified, so this package follows the teacher's NATS wrapper shape
// directly rather than inventing protocol semantics.
package bus

import (
	"bytes"
	"encoding/json"
)

// Config holds the connection parameters for the bus client.
type Config struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
	// Identity is the connection name advertised to the server (spec §6:
	// "Connect with identity fty-metric-compute, or caller-supplied name").
	Identity string `json:"identity"`
}

const ConfigSchema = `{
    "type": "object",
    "description": "Configuration for the telemetry bus client.",
    "properties": {
        "address": {
            "description": "Address of the bus server (e.g. 'nats://localhost:4222').",
            "type": "string"
        },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "creds-file-path": { "type": "string" },
        "identity": {
            "description": "Connection name advertised to the server.",
            "type": "string"
        }
    },
    "required": ["address"]
}`

// DefaultIdentity is used when Config.Identity is empty.
const DefaultIdentity = "fty-metric-compute"

// ParseConfig decodes raw into a Config, filling in DefaultIdentity.
func ParseConfig(raw json.RawMessage) (Config, error) {
	cfg := Config{Identity: DefaultIdentity}
	if raw == nil {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Identity == "" {
		cfg.Identity = DefaultIdentity
	}
	return cfg, nil
}
