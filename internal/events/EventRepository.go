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

package events

import (
	"time"
)

// Filter selects stored records. Zero values do not filter.
// StartTime and EndTime only match records that have a timestamp.
type Filter struct {
	Kinds     []Kind
	PoolGuid  string
	Source    string
	MinTxg    *uint64
	MaxTxg    *uint64
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

type Repository interface {
	// AddBatch stores records. Records that were already stored (same SourceId, line and kind) are skipped.
	AddBatch(records []Record) error
	// DeleteOtherRuns removes every record of source that was not stored by the ingestion run sourceId, and returns
	// the number of removed records.
	DeleteOtherRuns(source string, sourceId string) (int64, error)
	// Filter returns matching records ordered by txg, then by id.
	Filter(f Filter) ([]Record, error)
}
