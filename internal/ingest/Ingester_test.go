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

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackbister/zdbtimeline/internal/config"
	"github.com/jackbister/zdbtimeline/internal/events"
	"github.com/jackbister/zdbtimeline/internal/grammar"
	"github.com/jackbister/zdbtimeline/internal/parser"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

const datasetDump = `Dataset pool1/fs1 [ZPL], ID 21, cr_txg 1, 19.5K, 7 objects

    Object  lvl   iblk   dblk  dsize  lsize   %full  type
        12    1  16384  12288  12288  12288  100.00  ZFS plain file (K=inherit)
	path	/foo/bar
	gen	25
	crtime	Tue Nov 19 12:23:57 2013
	mtime	Wed Nov 20 23:40:03 2013
Indirect blocks:
               0 L0 DVA[0]=<3:229eea00:3000> [L0 ZFS plain file] fletcher4 uncompressed LE contiguous unique single size=3000L/3000P birth=25406L/25406P fill=1 cksum=537fffffb40:21b297ffdebaa0
           20000 L0 DVA[0]=<6:3db3000:20000> [L0 ZFS plain file] fletcher4 uncompressed LE contiguous unique single size=20000L/20000P birth=3110L/3110P fill=1 cksum=2ebe969667d8:e4dc5e86a2ab290

		segment [0000000000000000, 0000000000040000) size  256K
`

var labelDump = "\n" + grammar.LabelSeparator + "\nLABEL 0\n" + grammar.LabelSeparator + `
    version: 5000
    name: 'tank'
    pool_guid: 42
    Uberblock[3]
	magic = 0000000000bab10c
	version = 5000
	txg = 5000
	guid_sum = 1190453340519458014
	timestamp = 1384818880 UTC = Tue Nov 19 10:54:40 2013
    Uberblock[4]
	magic = 0000000000bab10c
	version = 5000
	txg = 5001
	guid_sum = 1190453340519458014
	timestamp = 1384818885 UTC = Tue Nov 19 10:54:45 2013
`

type recordingPublisher struct {
	mu   sync.Mutex
	recs []events.Record
}

func (p *recordingPublisher) PublishEvent(rec events.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
}

func (p *recordingPublisher) Flush() {}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) records() []events.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Record{}, p.recs...)
}

// emptyRepo stores nothing. It is used together with recordingPublisher, which keeps the published records itself.
type emptyRepo struct{}

func (r emptyRepo) AddBatch(_ []events.Record) error {
	return nil
}

func (r emptyRepo) DeleteOtherRuns(_ string, _ string) (int64, error) {
	return 0, nil
}

func (r emptyRepo) Filter(_ events.Filter) ([]events.Record, error) {
	return []events.Record{}, nil
}

func newTestIngester(pub events.Publisher) *Ingester {
	return NewIngester(IngesterParams{
		Cfg:       config.Default(),
		Publisher: pub,
		Repo:      emptyRepo{},
		Logger:    zap.NewNop(),
	})
}

func TestIngest_DatasetDump(t *testing.T) {
	pub := &recordingPublisher{}
	in := newTestIngester(pub)
	res, err := in.Ingest(context.Background(), strings.NewReader(datasetDump), "dataset.txt")
	if err != nil {
		t.Fatalf("got error when ingesting dataset dump: %v", err)
	}
	if res.Format != parser.FormatDataset {
		t.Fatalf("expected format=dataset but got %v", res.Format)
	}
	if res.Events != 3 || res.Lines != 13 {
		t.Fatalf("got unexpected result %+v", res)
	}
	recs := pub.records()
	if len(recs) != 3 {
		t.Fatalf("got unexpected number of events, expected 3 but got %v", len(recs))
	}
	expectedLines := []int64{7, 10, 11}
	expectedKinds := []events.Kind{events.KindFileCreate, events.KindFileModify, events.KindFileModify}
	for i, rec := range recs {
		if rec.Line != expectedLines[i] {
			t.Fatalf("expected event %v to come from line=%v but got %v", i, expectedLines[i], rec.Line)
		}
		if rec.Event.Kind() != expectedKinds[i] {
			t.Fatalf("expected event %v to have kind=%v but got %v", i, expectedKinds[i], rec.Event.Kind())
		}
		if rec.Source != "dataset.txt" || rec.SourceId != res.SourceId {
			t.Fatalf("got unexpected source on record %+v", rec)
		}
	}
}

func TestIngest_LabelDump(t *testing.T) {
	pub := &recordingPublisher{}
	in := newTestIngester(pub)
	res, err := in.Ingest(context.Background(), strings.NewReader(labelDump), "label.txt")
	if err != nil {
		t.Fatalf("got error when ingesting label dump: %v", err)
	}
	if res.Format != parser.FormatLabel {
		t.Fatalf("expected format=label but got %v", res.Format)
	}
	recs := pub.records()
	if len(recs) != 2 {
		t.Fatalf("got unexpected number of events, expected 2 but got %v", len(recs))
	}
	ub, ok := recs[1].Event.(events.UberblockEvent)
	if !ok {
		t.Fatalf("expected UberblockEvent but got %T", recs[1].Event)
	}
	if ub.PoolGuid != "42" || ub.Txg != 5001 || ub.Timestamp != 1384818885 {
		t.Fatalf("got unexpected uberblock event %+v", ub)
	}
}

func TestIngest_UnsupportedFormat(t *testing.T) {
	pub := &recordingPublisher{}
	in := newTestIngester(pub)
	_, err := in.Ingest(context.Background(), strings.NewReader("hello\nworld\n"), "notes.txt")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat but got %v", err)
	}
	if len(pub.records()) != 0 {
		t.Fatalf("expected no events to be published for unsupported input but got %v", len(pub.records()))
	}
}

func TestIngest_EmptyInputIsUnsupported(t *testing.T) {
	in := newTestIngester(&recordingPublisher{})
	_, err := in.Ingest(context.Background(), strings.NewReader(""), "empty.txt")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat but got %v", err)
	}
}

func TestIngest_HeaderAfterPreamble(t *testing.T) {
	preamble := "zdb -P -bbbbbb -dddddd pool1/fs1\n\n"
	pub := &recordingPublisher{}
	in := newTestIngester(pub)
	res, err := in.Ingest(context.Background(), strings.NewReader(preamble+datasetDump), "dataset.txt")
	if err != nil {
		t.Fatalf("got error when ingesting dataset dump with preamble: %v", err)
	}
	if res.Events != 3 {
		t.Fatalf("expected 3 events but got %v", res.Events)
	}
	if recs := pub.records(); recs[0].Line != 9 {
		t.Fatalf("expected line numbers to include the preamble, create event at line=9 but got %v", recs[0].Line)
	}
}

func TestIngest_HeaderAfterProbeLines(t *testing.T) {
	cfg := config.Default()
	cfg.ProbeLines = 2
	in := NewIngester(IngesterParams{
		Cfg:       cfg,
		Publisher: &recordingPublisher{},
		Repo:      emptyRepo{},
		Logger:    zap.NewNop(),
	})
	// Blank lines are not counted.
	_, err := in.Ingest(context.Background(), strings.NewReader("one\n\n\ntwo\n"+datasetDump), "dataset.txt")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat when the header comes after probeLines but got %v", err)
	}
	_, err = in.Ingest(context.Background(), strings.NewReader("one\n\n\n"+datasetDump), "dataset.txt")
	if err != nil {
		t.Fatalf("expected header on the second non-blank line to be detected but got %v", err)
	}
}

func TestIngest_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := newTestIngester(&recordingPublisher{})
	_, err := in.Ingest(ctx, strings.NewReader(datasetDump), "dataset.txt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled but got %v", err)
	}
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	fileName := filepath.Join(dir, "label.txt")
	err := os.WriteFile(fileName, []byte(labelDump), 0644)
	if err != nil {
		t.Fatalf("got error when writing test dump: %v", err)
	}
	pub := &recordingPublisher{}
	in := newTestIngester(pub)
	res, err := in.IngestFile(context.Background(), fileName)
	if err != nil {
		t.Fatalf("got error when ingesting file: %v", err)
	}
	if res.Source != fileName || res.Events != 2 {
		t.Fatalf("got unexpected result %+v", res)
	}

	_, err = in.IngestFile(context.Background(), filepath.Join(dir, "missing.txt"))
	if err == nil {
		t.Fatal("expected error when ingesting a file that does not exist")
	}
}

func TestIngest_NewSourceIdPerRun(t *testing.T) {
	in := newTestIngester(&recordingPublisher{})
	a, err := in.Ingest(context.Background(), strings.NewReader(labelDump), "label.txt")
	if err != nil {
		t.Fatalf("got error when ingesting: %v", err)
	}
	b, err := in.Ingest(context.Background(), strings.NewReader(labelDump), "label.txt")
	if err != nil {
		t.Fatalf("got error when ingesting: %v", err)
	}
	if a.SourceId == "" || a.SourceId == b.SourceId {
		t.Fatalf("expected a new non-empty sourceId per run but got '%s' and '%s'", a.SourceId, b.SourceId)
	}
}

func newSqliteIngester(t *testing.T) (*Ingester, events.Repository) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("got error when creating in-memory SQLite database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	cfg := config.Default()
	// Nothing is flushed by time or size, so only the ingester's own flush makes events visible.
	cfg.Publisher = &config.PublisherConfig{MaxBufferedEvents: 1000, FlushInterval: time.Hour}
	logger := zap.NewNop()
	repo, err := events.SqliteRepository(events.SqliteEventRepositoryParams{Db: db, Cfg: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("got error when creating events repo: %v", err)
	}
	pub := events.BatchedRepositoryPublisher(events.BatchedRepositoryPublisherParams{Cfg: cfg, Repo: repo, Logger: logger})
	t.Cleanup(pub.Close)
	return NewIngester(IngesterParams{Cfg: cfg, Publisher: pub, Repo: repo, Logger: logger}), repo
}

func TestIngest_EventsStoredOnReturn(t *testing.T) {
	in, repo := newSqliteIngester(t)
	res, err := in.Ingest(context.Background(), strings.NewReader(datasetDump), "dataset-0.zdb")
	if err != nil {
		t.Fatalf("got error when ingesting dataset dump: %v", err)
	}
	recs, err := repo.Filter(events.Filter{Source: "dataset-0.zdb"})
	if err != nil {
		t.Fatalf("got error when retrieving events: %v", err)
	}
	if len(recs) != res.Events {
		t.Fatalf("got unexpected number of events, expected %v but got %v", res.Events, len(recs))
	}
}

func TestIngest_RewrittenDumpReplacesEarlierRun(t *testing.T) {
	in, repo := newSqliteIngester(t)
	_, err := in.Ingest(context.Background(), strings.NewReader(labelDump), "label.zdb")
	if err != nil {
		t.Fatalf("got error when ingesting label dump: %v", err)
	}
	_, err = in.Ingest(context.Background(), strings.NewReader(datasetDump), "dataset-0.zdb")
	if err != nil {
		t.Fatalf("got error when ingesting the first dataset dump: %v", err)
	}

	// Same length and layout, so every event lands on the same line and kind as in the first run.
	rewritten := strings.ReplaceAll(datasetDump, "/foo/bar", "/foo/baz")
	rewritten = strings.ReplaceAll(rewritten, "birth=25406L/25406P", "birth=25500L/25500P")
	second, err := in.Ingest(context.Background(), strings.NewReader(rewritten), "dataset-0.zdb")
	if err != nil {
		t.Fatalf("got error when ingesting the rewritten dataset dump: %v", err)
	}

	recs, err := repo.Filter(events.Filter{Source: "dataset-0.zdb"})
	if err != nil {
		t.Fatalf("got error when retrieving events: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got unexpected number of events, expected 3 but got %v", len(recs))
	}
	for _, rec := range recs {
		if rec.SourceId != second.SourceId {
			t.Fatalf("expected only events from the latest run with sourceId=%s but got %+v", second.SourceId, rec)
		}
		var path string
		switch e := rec.Event.(type) {
		case events.FileCreateEvent:
			path = e.Path
		case events.FileModifyEvent:
			path = e.Path
		}
		if path != "/foo/baz" {
			t.Fatalf("expected only events for /foo/baz but got %+v", rec.Event)
		}
	}
	if recs[len(recs)-1].Event.Key().Txg != 25500 {
		t.Fatalf("expected the rewritten birth txg 25500 to be stored but got %+v", recs)
	}

	// A failed run does not remove the events of the last successful one.
	_, err = in.Ingest(context.Background(), strings.NewReader("not a dump\n"), "dataset-0.zdb")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat but got %v", err)
	}
	recs, err = repo.Filter(events.Filter{Source: "dataset-0.zdb"})
	if err != nil {
		t.Fatalf("got error when retrieving events: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected the events of the last successful run to be kept but got %v events", len(recs))
	}

	recs, err = repo.Filter(events.Filter{Source: "label.zdb"})
	if err != nil {
		t.Fatalf("got error when retrieving events: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected events of other sources to be kept but got %v events for label.zdb", len(recs))
	}
}
