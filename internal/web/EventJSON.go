// Copyright 2024 Jack Bister
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import (
	"github.com/jackbister/zdbtimeline/internal/correlate"
	"github.com/jackbister/zdbtimeline/internal/events"
)

type EventJSON struct {
	Id        int64  `json:"id"`
	Kind      string `json:"kind"`
	PoolGuid  string `json:"poolGuid"`
	Txg       uint64 `json:"txg"`
	Timestamp *int64 `json:"timestamp"`
	Path      string `json:"path,omitempty"`
	Dataset   string `json:"dataset,omitempty"`
	Object    uint64 `json:"object,omitempty"`
	Source    string `json:"source"`
	SourceId  string `json:"sourceId"`
	Line      int64  `json:"line"`
	Message   string `json:"message"`
}

type ResolvedJSON struct {
	EventJSON
	Estimated  bool    `json:"estimated"`
	MatchedTxg *uint64 `json:"matchedTxg,omitempty"`
}

type IngestResultJSON struct {
	Source   string `json:"source"`
	SourceId string `json:"sourceId"`
	Format   string `json:"format"`
	Lines    int64  `json:"lines"`
	Events   int    `json:"events"`
}

func toEventJSON(rec events.Record) EventJSON {
	key := rec.Event.Key()
	ret := EventJSON{
		Id:       rec.Id,
		Kind:     string(rec.Event.Kind()),
		PoolGuid: key.PoolGuid,
		Txg:      key.Txg,
		Source:   rec.Source,
		SourceId: rec.SourceId,
		Line:     rec.Line,
		Message:  events.Message(rec.Event),
	}
	if ts, ok := rec.Event.Time(); ok {
		ret.Timestamp = &ts
	}
	switch e := rec.Event.(type) {
	case events.FileCreateEvent:
		ret.Path, ret.Dataset, ret.Object = e.Path, e.Dataset, e.Object
	case events.FileModifyEvent:
		ret.Path, ret.Dataset, ret.Object = e.Path, e.Dataset, e.Object
	}
	return ret
}

func toResolvedJSON(res correlate.Resolution) ResolvedJSON {
	ret := ResolvedJSON{
		EventJSON: toEventJSON(res.Record),
		Estimated: res.Estimated,
	}
	ret.Timestamp = res.Timestamp
	if res.Estimated {
		txg := res.MatchedTxg
		ret.MatchedTxg = &txg
	}
	return ret
}
