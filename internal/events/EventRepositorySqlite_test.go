// Copyright 2021 Jack Bister
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
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jackbister/zdbtimeline/internal/config"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

func testRecords() []Record {
	mtime := int64(1384818880)
	return []Record{
		{
			Event:    UberblockEvent{TxgKey: TxgKey{PoolGuid: "1234", Txg: 25406}, Timestamp: 1384818881},
			Source:   "label.txt",
			SourceId: "a",
			Line:     7,
		},
		{
			Event:    FileCreateEvent{TxgKey: TxgKey{PoolGuid: "tank/fs", Txg: 3110}, Timestamp: 1384818877, Path: "/hello.txt", Dataset: "tank/fs", Object: 8},
			Source:   "dataset.txt",
			SourceId: "b",
			Line:     12,
		},
		{
			Event:    FileModifyEvent{TxgKey: TxgKey{PoolGuid: "tank/fs", Txg: 25406}, Timestamp: &mtime, Path: "/hello.txt", Dataset: "tank/fs", Object: 8},
			Source:   "dataset.txt",
			SourceId: "b",
			Line:     20,
		},
		{
			Event:    FileModifyEvent{TxgKey: TxgKey{PoolGuid: "tank/fs", Txg: 3110}, Timestamp: nil, Path: "/hello.txt", Dataset: "tank/fs", Object: 8},
			Source:   "dataset.txt",
			SourceId: "b",
			Line:     21,
		},
	}
}

func TestAddBatchTrueBatch(t *testing.T) {
	repo := createRepoWithCfg(t, &config.SqliteConfig{
		DatabaseFile: ":memory:",
		TrueBatch:    true,
	})

	err := repo.AddBatch(testRecords())
	if err != nil {
		t.Fatalf("got error when adding events: %v", err)
	}

	recs, err := repo.Filter(Filter{})
	if err != nil {
		t.Fatalf("got error when retrieving events: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("got unexpected number of events, expected 4 events but got %v", len(recs))
	}
}

func TestAddBatchOneByOne(t *testing.T) {
	repo := createRepoWithCfg(t, &config.SqliteConfig{
		DatabaseFile: ":memory:",
		TrueBatch:    false,
	})

	err := repo.AddBatch(testRecords())
	if err != nil {
		t.Fatalf("got error when adding events: %v", err)
	}

	recs, err := repo.Filter(Filter{})
	if err != nil {
		t.Fatalf("got error when retrieving events: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("got unexpected number of events, expected 4 events but got %v", len(recs))
	}
}

func TestAddBatchSkipsDuplicates(t *testing.T) {
	for _, trueBatch := range []bool{true, false} {
		repo := createRepoWithCfg(t, &config.SqliteConfig{
			DatabaseFile: ":memory:",
			TrueBatch:    trueBatch,
		})
		repo.AddBatch(testRecords())
		err := repo.AddBatch(testRecords())
		if err != nil {
			t.Fatalf("got error when adding the same events twice with trueBatch=%v: %v", trueBatch, err)
		}
		recs, err := repo.Filter(Filter{})
		if err != nil {
			t.Fatalf("got error when retrieving events: %v", err)
		}
		if len(recs) != 4 {
			t.Fatalf("expected 4 events after adding the same batch twice with trueBatch=%v but got %v", trueBatch, len(recs))
		}
	}
}

func TestDeleteOtherRuns(t *testing.T) {
	for _, trueBatch := range []bool{true, false} {
		repo := createRepoWithCfg(t, &config.SqliteConfig{
			DatabaseFile: ":memory:",
			TrueBatch:    trueBatch,
		})
		oldRun := Record{
			Event:    FileCreateEvent{TxgKey: TxgKey{PoolGuid: "tank/fs", Txg: 10}, Timestamp: 1384818877, Path: "/old", Dataset: "tank/fs", Object: 8},
			Source:   "dataset-0.zdb",
			SourceId: "run1",
			Line:     6,
		}
		newRun := Record{
			Event:    FileCreateEvent{TxgKey: TxgKey{PoolGuid: "tank/fs", Txg: 20}, Timestamp: 1384818977, Path: "/new", Dataset: "tank/fs", Object: 8},
			Source:   "dataset-0.zdb",
			SourceId: "run2",
			Line:     6,
		}
		other := testRecords()[0]
		err := repo.AddBatch([]Record{oldRun, other})
		if err != nil {
			t.Fatalf("got error when adding the first run with trueBatch=%v: %v", trueBatch, err)
		}
		err = repo.AddBatch([]Record{newRun})
		if err != nil {
			t.Fatalf("got error when adding the second run with trueBatch=%v: %v", trueBatch, err)
		}
		recs, err := repo.Filter(Filter{Source: "dataset-0.zdb"})
		if err != nil {
			t.Fatalf("got error when retrieving events: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("expected both runs to be stored before deleting with trueBatch=%v but got %v events", trueBatch, len(recs))
		}

		n, err := repo.DeleteOtherRuns("dataset-0.zdb", "run2")
		if err != nil {
			t.Fatalf("got error when deleting earlier runs: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 deleted event but got %v", n)
		}
		recs, err = repo.Filter(Filter{Source: "dataset-0.zdb"})
		if err != nil {
			t.Fatalf("got error when retrieving events: %v", err)
		}
		if len(recs) != 1 || recs[0].SourceId != "run2" || recs[0].Event.(FileCreateEvent).Path != "/new" {
			t.Fatalf("expected only the event from run2 to remain but got %+v", recs)
		}
		recs, err = repo.Filter(Filter{Source: other.Source})
		if err != nil {
			t.Fatalf("got error when retrieving events: %v", err)
		}
		if len(recs) != 1 {
			t.Fatalf("expected events of other sources to be kept but got %v events for source=%s", len(recs), other.Source)
		}
	}
}

func TestAddBatchLargerThanOneStatement(t *testing.T) {
	repo := createRepo(t)
	recs := make([]Record, 0, 1234)
	for i := 0; i < 1234; i++ {
		recs = append(recs, Record{
			Event:    UberblockEvent{TxgKey: TxgKey{PoolGuid: "1", Txg: uint64(i)}, Timestamp: int64(1000 + i)},
			Source:   fmt.Sprintf("label-%v.txt", i%3),
			SourceId: "x",
			Line:     int64(i),
		})
	}
	err := repo.AddBatch(recs)
	if err != nil {
		t.Fatalf("got error when adding events: %v", err)
	}
	got, err := repo.Filter(Filter{})
	if err != nil {
		t.Fatalf("got error when retrieving events: %v", err)
	}
	if len(got) != 1234 {
		t.Fatalf("expected 1234 events but got %v", len(got))
	}
}

func TestRoundTripPreservesEvents(t *testing.T) {
	repo := createRepo(t)
	repo.AddBatch(testRecords())

	recs, err := repo.Filter(Filter{Kinds: []Kind{KindFileModify}})
	if err != nil {
		t.Fatalf("got error when retrieving events: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 modify events but got %v", len(recs))
	}
	// Ordered by txg so the modify without a timestamp comes first.
	first, ok := recs[0].Event.(FileModifyEvent)
	if !ok {
		t.Fatalf("expected FileModifyEvent but got %T", recs[0].Event)
	}
	if first.Txg != 3110 || first.Timestamp != nil || first.Path != "/hello.txt" || first.Object != 8 {
		t.Fatalf("got unexpected first modify event %+v", first)
	}
	second := recs[1].Event.(FileModifyEvent)
	if second.Txg != 25406 || second.Timestamp == nil || *second.Timestamp != 1384818880 {
		t.Fatalf("got unexpected second modify event %+v", second)
	}
	if recs[1].Source != "dataset.txt" || recs[1].SourceId != "b" || recs[1].Line != 20 {
		t.Fatalf("got unexpected record metadata %+v", recs[1])
	}

	recs, err = repo.Filter(Filter{Kinds: []Kind{KindUberblock}})
	if err != nil {
		t.Fatalf("got error when retrieving events: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 uberblock event but got %v", len(recs))
	}
	ub := recs[0].Event.(UberblockEvent)
	if ub.PoolGuid != "1234" || ub.Txg != 25406 || ub.Timestamp != 1384818881 {
		t.Fatalf("got unexpected uberblock event %+v", ub)
	}
}

func TestFilter(t *testing.T) {
	repo := createRepo(t)
	repo.AddBatch(testRecords())

	minTxg := uint64(4000)
	start := time.Unix(1384818878, 0)
	end := time.Unix(1384818880, 0)
	cases := []struct {
		name     string
		filter   Filter
		expected int
	}{
		{"pool", Filter{PoolGuid: "tank/fs"}, 3},
		{"source", Filter{Source: "label.txt"}, 1},
		{"minTxg", Filter{MinTxg: &minTxg}, 2},
		{"maxTxg", Filter{MaxTxg: &minTxg}, 2},
		{"time range skips events without timestamp", Filter{StartTime: &start, EndTime: &end}, 1},
		{"kinds", Filter{Kinds: []Kind{KindFileCreate, KindUberblock}}, 2},
		{"limit", Filter{Limit: 3}, 3},
	}
	for _, c := range cases {
		recs, err := repo.Filter(c.filter)
		if err != nil {
			t.Fatalf("got error when filtering with case=%s: %v", c.name, err)
		}
		if len(recs) != c.expected {
			t.Fatalf("got unexpected number of events for case=%s, expected %v but got %v", c.name, c.expected, len(recs))
		}
	}
}

func createRepo(t *testing.T) Repository {
	return createRepoWithCfg(t, &config.SqliteConfig{
		DatabaseFile: ":memory:",
		TrueBatch:    true,
	})
}

func createRepoWithCfg(t *testing.T, cfg *config.SqliteConfig) Repository {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("got error when creating in-memory SQLite database: %v", err)
	}
	// Every connection to :memory: gets its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	c := config.Default()
	c.SQLite = cfg
	repo, err := SqliteRepository(SqliteEventRepositoryParams{
		Db:     db,
		Cfg:    c,
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("got error when creating events repo: %v", err)
	}
	return repo
}
