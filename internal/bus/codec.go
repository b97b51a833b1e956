// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"fmt"
	"time"

	influx "github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/fty/metric-compute/internal/aggregation"
)

// DecodeSample decodes one raw sample off the wire (spec §3 "Raw sample").
// The wire format is influx line protocol: measurement = quantity, tag
// "asset" = asset name, fields "value"/"unit"/"ttl_s" = the sample payload,
// timestamp = sample time. This mirrors the teacher's DecodeInfluxMessage,
// adapted to decode directly into aggregation.Sample instead of a generic
// tag/field message envelope.
func DecodeSample(dec *influx.Decoder) (aggregation.Sample, error) {
	var s aggregation.Sample

	measurement, err := dec.Measurement()
	if err != nil {
		return s, fmt.Errorf("bus: decode measurement: %w", err)
	}
	s.Quantity = string(measurement)

	for {
		key, value, err := dec.NextTag()
		if err != nil {
			return s, fmt.Errorf("bus: decode tag: %w", err)
		}
		if key == nil {
			break
		}
		if string(key) == "asset" {
			s.Asset = string(value)
		}
	}

	for {
		key, value, err := dec.NextField()
		if err != nil {
			return s, fmt.Errorf("bus: decode field: %w", err)
		}
		if key == nil {
			break
		}
		switch string(key) {
		case "value":
			switch value.Kind() {
			case influx.Float:
				s.Value = value.FloatV()
			case influx.Int:
				s.Value = float64(value.IntV())
			case influx.Uint:
				s.Value = float64(value.UintV())
			default:
				return s, fmt.Errorf("bus: unsupported value kind %s", value.Kind())
			}
		case "unit":
			s.Unit = string(value.StringV())
		case "ttl_s":
			s.TTLSeconds = value.IntV()
		}
	}

	t, err := dec.Time(influx.Second, time.Time{})
	if err != nil {
		return s, fmt.Errorf("bus: decode time: %w", err)
	}
	s.TimestampS = t.Unix()
	return s, nil
}

// EncodeMetric renders an emitted metric as a single influx line protocol
// line, carrying the auxiliary fields spec §6 names: x-cm-count, x-cm-sum,
// x-cm-type, x-cm-step, x-cm-last-ts.
func EncodeMetric(e *aggregation.EmittedMetric) ([]byte, error) {
	var enc influx.Encoder
	enc.SetPrecision(influx.Second)

	// StartLine/AddTag/AddField/EndLine accumulate errors internally rather
	// than returning them; Err must be checked once after the line is built.
	enc.StartLine(e.Type())
	enc.AddTag("asset", e.Asset)

	fields := []struct {
		key string
		val influx.Value
	}{
		{"value", influx.MustNewValue(float64(e.Value))},
		{"unit", influx.MustNewValue(e.Unit)},
		{"ttl", influx.MustNewValue(e.TTLSeconds)},
		{"x-cm-count", influx.MustNewValue(e.Count)},
		{"x-cm-sum", influx.MustNewValue(float64(e.Sum))},
		{"x-cm-type", influx.MustNewValue(e.Type())},
		{"x-cm-step", influx.MustNewValue(e.StepSeconds)},
		{"x-cm-last-ts", influx.MustNewValue(e.LastTS)},
	}
	for _, f := range fields {
		enc.AddField(f.key, f.val)
	}

	enc.EndLine(time.Unix(e.LastTS, 0))
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("bus: encode %s: %w", e.Subject(), err)
	}
	return enc.Bytes(), nil
}
