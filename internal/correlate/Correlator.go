// Copyright 2024 Jack Bister
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package correlate gives modify events without a timestamp the time of the uberblock written in the same (or a
// nearby) transaction group.
package correlate

import (
	"sort"

	"github.com/jackbister/zdbtimeline/internal/events"
)

type Resolution struct {
	events.Record

	// Timestamp is nil if the event had no timestamp and no uberblock was close enough.
	Timestamp *int64
	// Estimated is true if Timestamp was taken from an uberblock instead of from the event itself.
	Estimated bool
	// MatchedTxg is the txg of the uberblock that was used. Only set when Estimated is true.
	MatchedTxg uint64
}

// Resolve returns one Resolution per record in mods, in the same order. Records that are not modify events, or that
// already have a timestamp, are passed through as they are.
// An uberblock is used if its txg is at most tolerance away from the txg of the event. If two uberblocks are equally
// close the one with the lower txg is used. Pool keys are not compared, so callers should only pass uberblocks of the
// pool the dataset belongs to.
func Resolve(uberblocks []events.UberblockEvent, mods []events.Record, tolerance uint64) []Resolution {
	sorted := make([]events.UberblockEvent, len(uberblocks))
	copy(sorted, uberblocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Txg < sorted[j].Txg
	})

	ret := make([]Resolution, 0, len(mods))
	for _, rec := range mods {
		res := Resolution{Record: rec}
		if ts, ok := rec.Event.Time(); ok {
			t := ts
			res.Timestamp = &t
			ret = append(ret, res)
			continue
		}
		if ub, ok := nearest(sorted, rec.Event.Key().Txg, tolerance); ok {
			t := ub.Timestamp
			res.Timestamp = &t
			res.Estimated = true
			res.MatchedTxg = ub.Txg
		}
		ret = append(ret, res)
	}
	return ret
}

func nearest(sorted []events.UberblockEvent, txg uint64, tolerance uint64) (events.UberblockEvent, bool) {
	// i is the first uberblock with a txg >= the wanted txg.
	i := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Txg >= txg
	})
	var best events.UberblockEvent
	var bestDist uint64
	found := false
	if i < len(sorted) {
		best = sorted[i]
		bestDist = sorted[i].Txg - txg
		found = true
	}
	if i > 0 {
		below := sorted[i-1]
		// Ties go to the lower txg.
		if d := txg - below.Txg; !found || d <= bestDist {
			best = below
			bestDist = d
			found = true
		}
	}
	if !found || bestDist > tolerance {
		return events.UberblockEvent{}, false
	}
	return best, true
}
