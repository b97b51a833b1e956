// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregation

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fty/metric-compute/pkg/log"
)

// recordIndent and fieldIndent are the indentation widths used by the
// line-structured key-value format at <dir>/state.zpl (spec §6 "State
// file"): a root group "cmstats", one child group per accumulator named by
// ordinal, and scalar "key = value" children underneath each group.
const (
	recordIndent = "    "
	fieldIndent  = "        "
)

// Save serializes every accumulator in m to path as a single whole-file
// write (spec §5 recommends atomic-rename semantics). It writes to a
// temporary sibling file first and renames it into place so a crash mid-write
// never leaves a truncated state file behind.
func (m *Map) Save(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("aggregation: create checkpoint: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "cmstats")

	i := 0
	for _, acc := range m.accs {
		fmt.Fprintf(w, "%s%d\n", recordIndent, i)
		fmt.Fprintf(w, "%smetric_topic = \"%s@%s\"\n", fieldIndent, acc.quantityOut(), acc.asset)
		fmt.Fprintf(w, "%stype = \"%s\"\n", fieldIndent, acc.quantityOut())
		fmt.Fprintf(w, "%selement_src = \"%s\"\n", fieldIndent, acc.asset)
		fmt.Fprintf(w, "%svalue = \"%s\"\n", fieldIndent, formatField(acc.value))
		fmt.Fprintf(w, "%sunit = \"%s\"\n", fieldIndent, acc.unit)
		fmt.Fprintf(w, "%sttl = \"%d\"\n", fieldIndent, acc.ttlSeconds)
		fmt.Fprintf(w, "%saux.quantity = \"%s\"\n", fieldIndent, acc.quantity)
		fmt.Fprintf(w, "%saux.function = \"%s\"\n", fieldIndent, acc.function)
		fmt.Fprintf(w, "%saux.step_label = \"%s\"\n", fieldIndent, acc.stepLabel)
		fmt.Fprintf(w, "%saux.step = \"%d\"\n", fieldIndent, acc.stepSeconds)
		fmt.Fprintf(w, "%saux.interval_start = \"%d\"\n", fieldIndent, acc.intervalStart)
		fmt.Fprintf(w, "%saux.count = \"%d\"\n", fieldIndent, acc.count)
		fmt.Fprintf(w, "%saux.sum = \"%s\"\n", fieldIndent, formatField(acc.sum))
		fmt.Fprintf(w, "%saux.last_ts = \"%d\"\n", fieldIndent, acc.lastSampleTS)
		i++
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("aggregation: flush checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("aggregation: close checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("aggregation: rename checkpoint into place: %w", err)
	}
	return nil
}

func formatField(f Float) string {
	if f.IsNaN() {
		return "nan"
	}
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}

// Load reads path and returns the aggregation map it describes. A missing
// file is not an error: it returns an empty map so first start is
// transparent (spec §4.2.4). Records whose value field is non-finite are
// skipped and logged; a non-finite sum field is reset to zero rather than
// discarding the whole record.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMap(), nil
		}
		return nil, fmt.Errorf("aggregation: open checkpoint: %w", err)
	}
	defer f.Close()

	m := NewMap()
	var current map[string]string
	commit := func() {
		if current == nil {
			return
		}
		if acc, ok := recordToAccumulator(current); ok {
			m.accs[key(acc.quantity, acc.function, acc.stepLabel, acc.asset)] = acc
		}
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " "))

		if indent <= len(recordIndent) {
			if trimmed == "cmstats" {
				continue
			}
			commit()
			current = make(map[string]string)
			continue
		}

		parts := strings.SplitN(trimmed, "=", 2)
		if len(parts) != 2 || current == nil {
			continue
		}
		k := strings.TrimSpace(parts[0])
		v := strings.Trim(strings.TrimSpace(parts[1]), "\"")
		current[k] = v
	}
	commit()

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("aggregation: scan checkpoint: %w", err)
	}
	return m, nil
}

// recordToAccumulator rebuilds an accumulator from a parsed zpl record,
// skipping it (with a logged warning) if its value field is not finite.
func recordToAccumulator(fields map[string]string) (*accumulator, bool) {
	value, err := ParseFloat(fields["value"])
	if err != nil || !value.IsFinite() {
		log.Warnf("aggregation: skipping checkpoint record %q: non-finite value", fields["metric_topic"])
		return nil, false
	}

	sum, err := ParseFloat(fields["aux.sum"])
	if err != nil || !sum.IsFinite() {
		sum = 0
	}

	step, _ := strconv.ParseInt(fields["aux.step"], 10, 64)
	intervalStart, _ := strconv.ParseInt(fields["aux.interval_start"], 10, 64)
	count, _ := strconv.ParseInt(fields["aux.count"], 10, 64)
	lastTS, _ := strconv.ParseInt(fields["aux.last_ts"], 10, 64)
	ttl, _ := strconv.ParseInt(fields["ttl"], 10, 64)

	function, err := ParseFunction(fields["aux.function"])
	if err != nil {
		log.Warnf("aggregation: skipping checkpoint record %q: %s", fields["metric_topic"], err)
		return nil, false
	}

	return &accumulator{
		quantity:      fields["aux.quantity"],
		function:      function,
		stepLabel:     fields["aux.step_label"],
		stepSeconds:   step,
		asset:         fields["element_src"],
		unit:          fields["unit"],
		value:         value,
		sum:           sum,
		intervalStart: intervalStart,
		count:         count,
		lastSampleTS:  lastTS,
		ttlSeconds:    ttl,
	}, true
}
