// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesBuiltInConfiguration(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultFunctions, cfg.Functions)
	assert.Equal(t, DefaultSteps, cfg.Steps)
	assert.Equal(t, DefaultPersistDir, cfg.PersistDir)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
}

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	Keys = Default()
	Init(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Equal(t, Default(), Keys)
}

func TestInitOverridesOnlyGivenFields(t *testing.T) {
	Keys = Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"endpoint":"nats://localhost:4222","steps":["5s","10s"]}`), 0o644))

	Init(path)
	assert.Equal(t, "nats://localhost:4222", Keys.Endpoint)
	assert.Equal(t, []string{"5s", "10s"}, Keys.Steps)
	assert.Equal(t, DefaultFunctions, Keys.Functions)
	assert.Equal(t, DefaultPersistDir, Keys.PersistDir)
}

func TestValidateAcceptsUnknownFields(t *testing.T) {
	err := Validate(ConfigSchema, []byte(`{"bogus-field": true}`))
	// jsonschema with no additionalProperties:false does not itself reject
	// unknown top-level keys; this is enforced instead by DisallowUnknownFields
	// during decode in Init. Validate only needs to accept well-formed JSON.
	assert.NoError(t, err)
}
