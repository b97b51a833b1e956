// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import "encoding/json"

// AssetEvent carries an asset lifecycle notification (spec §4.3 "On an
// asset event"). Op and Status are both consulted: operation "delete" or
// "retire", or any status other than "active", purges the asset's
// accumulators. No ecosystem wire format is named for this message in the
// external interfaces this package stands in for, so it is decoded as
// plain JSON rather than line protocol, which has no notion of an
// enumerated operation field.
type AssetEvent struct {
	Asset  string `json:"asset"`
	Op     string `json:"op"`
	Status string `json:"status"`
}

// Purges reports whether this event should purge the asset's accumulators.
func (e AssetEvent) Purges() bool {
	switch e.Op {
	case "delete", "retire":
		return true
	}
	return e.Status != "" && e.Status != "active"
}

// DecodeAssetEvent parses a raw asset-lifecycle message.
func DecodeAssetEvent(data []byte) (AssetEvent, error) {
	var e AssetEvent
	err := json.Unmarshal(data, &e)
	return e, err
}
