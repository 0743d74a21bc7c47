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
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackbister/zdbtimeline/internal/config"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// Each row uses 10 variables. SQLite limits the number of variables in a statement, so big batches are split.
const maxRowsPerStatement = 500

type sqliteRepository struct {
	db *sql.DB

	cfg *config.SqliteConfig

	logger *zap.Logger
}

type SqliteEventRepositoryParams struct {
	dig.In

	Db     *sql.DB
	Cfg    *config.Config
	Logger *zap.Logger
}

func SqliteRepository(p SqliteEventRepositoryParams) (Repository, error) {
	_, err := p.Db.Exec("CREATE TABLE IF NOT EXISTS ZfsEvents (id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, kind TEXT NOT NULL, pool_guid TEXT NOT NULL, txg BIGINT NOT NULL, timestamp BIGINT NULL, path TEXT NOT NULL, dataset TEXT NOT NULL, object BIGINT NOT NULL, source TEXT NOT NULL, source_id TEXT NOT NULL, line BIGINT NOT NULL, UNIQUE(source_id, line, kind));")
	if err != nil {
		return nil, fmt.Errorf("error creating events table: %w", err)
	}
	_, err = p.Db.Exec("CREATE INDEX IF NOT EXISTS IX_ZfsEvents_Txg ON ZfsEvents(txg);")
	if err != nil {
		return nil, fmt.Errorf("error creating events txg index: %w", err)
	}
	_, err = p.Db.Exec("CREATE INDEX IF NOT EXISTS IX_ZfsEvents_Source ON ZfsEvents(source);")
	if err != nil {
		return nil, fmt.Errorf("error creating events source index: %w", err)
	}
	_, err = p.Db.Exec("CREATE INDEX IF NOT EXISTS IX_ZfsEvents_Timestamp ON ZfsEvents(timestamp);")
	if err != nil {
		return nil, fmt.Errorf("error creating events timestamp index: %w", err)
	}
	return &sqliteRepository{
		db:     p.Db,
		cfg:    p.Cfg.SQLite,
		logger: p.Logger,
	}, nil
}

func (repo *sqliteRepository) AddBatch(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if repo.cfg.TrueBatch {
		return repo.addBatchTrueBatch(records)
	} else {
		return repo.addBatchOneByOne(records)
	}
}

const esbBase = "INSERT OR IGNORE INTO ZfsEvents (kind, pool_guid, txg, timestamp, path, dataset, object, source, source_id, line) VALUES "
const esbBaseLen = len(esbBase)
const esbPerEvt = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
const esbPerEvtLen = len(esbPerEvt)

func (repo *sqliteRepository) addBatchTrueBatch(records []Record) error {
	startTime := time.Now()
	tx, err := repo.db.BeginTx(context.TODO(), nil)
	if err != nil {
		return fmt.Errorf("error starting transaction for adding event batch: %w", err)
	}
	var inserted int64
	for start := 0; start < len(records); start += maxRowsPerStatement {
		end := start + maxRowsPerStatement
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		var sb strings.Builder
		sb.Grow(esbBaseLen + esbPerEvtLen*len(chunk) + len(chunk))
		sb.WriteString(esbBase)
		args := make([]interface{}, 0, 10*len(chunk))
		for i, rec := range chunk {
			sb.WriteString(esbPerEvt)
			if i != len(chunk)-1 {
				sb.WriteRune(',')
			}
			args = append(args, recordToArgs(rec)...)
		}
		res, err := tx.Exec(sb.String(), args...)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error adding event batch to ZfsEvents table: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("error committing event batch: %w", err)
	}
	if skipped := int64(len(records)) - inserted; skipped > 0 {
		repo.logger.Info("Skipped adding events as they appear to be duplicates (same ingestion run, line and kind as an existing event)",
			zap.Int64("numEvents", skipped))
	}
	repo.logger.Info("added events",
		zap.Int("numEvents", len(records)),
		zap.Stringer("duration", time.Since(startTime)))
	return nil
}

func (repo *sqliteRepository) addBatchOneByOne(records []Record) error {
	startTime := time.Now()
	tx, err := repo.db.BeginTx(context.TODO(), nil)
	if err != nil {
		return fmt.Errorf("error starting transaction for adding event: %w", err)
	}
	numberOfDuplicates := map[string]int64{}
	for _, rec := range records {
		res, err := tx.Exec("INSERT OR IGNORE INTO ZfsEvents (kind, pool_guid, txg, timestamp, path, dataset, object, source, source_id, line) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);", recordToArgs(rec)...)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error executing add statement: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			numberOfDuplicates[rec.Source]++
		}
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("error committing events: %w", err)
	}
	for k, v := range numberOfDuplicates {
		repo.logger.Info("Skipped adding events because they appear to be duplicates (same ingestion run, line and kind as an existing event)",
			zap.Int64("numEvents", v), zap.String("source", k))
	}
	repo.logger.Info("added events",
		zap.Int("numEvents", len(records)),
		zap.Stringer("duration", time.Since(startTime)))
	return nil
}

func (repo *sqliteRepository) DeleteOtherRuns(source string, sourceId string) (int64, error) {
	res, err := repo.db.Exec("DELETE FROM ZfsEvents WHERE source = ? AND source_id <> ?;", source, sourceId)
	if err != nil {
		return 0, fmt.Errorf("error deleting events for source=%s: %w", source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting number of deleted events for source=%s: %w", source, err)
	}
	return n, nil
}

func (repo *sqliteRepository) Filter(f Filter) ([]Record, error) {
	var sb strings.Builder
	args := []interface{}{}
	sb.WriteString("SELECT id, kind, pool_guid, txg, timestamp, path, dataset, object, source, source_id, line FROM ZfsEvents WHERE 1=1")
	if len(f.Kinds) > 0 {
		sb.WriteString(" AND kind IN (")
		for i, k := range f.Kinds {
			if i != 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, string(k))
		}
		sb.WriteString(")")
	}
	if f.PoolGuid != "" {
		sb.WriteString(" AND pool_guid = ?")
		args = append(args, f.PoolGuid)
	}
	if f.Source != "" {
		sb.WriteString(" AND source = ?")
		args = append(args, f.Source)
	}
	if f.MinTxg != nil {
		sb.WriteString(" AND txg >= ?")
		args = append(args, int64(*f.MinTxg))
	}
	if f.MaxTxg != nil {
		sb.WriteString(" AND txg <= ?")
		args = append(args, int64(*f.MaxTxg))
	}
	if f.StartTime != nil {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, f.StartTime.Unix())
	}
	if f.EndTime != nil {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, f.EndTime.Unix())
	}
	sb.WriteString(" ORDER BY txg, id")
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}
	rows, err := repo.db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %w", err)
	}
	defer rows.Close()
	ret := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading events: %w", err)
	}
	return ret, nil
}

func recordToArgs(rec Record) []interface{} {
	key := rec.Event.Key()
	var ts interface{}
	if t, ok := rec.Event.Time(); ok {
		ts = t
	}
	var path, dataset string
	var object uint64
	switch e := rec.Event.(type) {
	case FileCreateEvent:
		path, dataset, object = e.Path, e.Dataset, e.Object
	case FileModifyEvent:
		path, dataset, object = e.Path, e.Dataset, e.Object
	}
	// SQLite integers are signed. Txgs and object numbers never get near the sign bit in practice.
	return []interface{}{string(rec.Event.Kind()), key.PoolGuid, int64(key.Txg), ts, path, dataset, int64(object), rec.Source, rec.SourceId, rec.Line}
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var id, txg, object, line int64
	var kind, poolGuid, path, dataset, source, sourceId string
	var ts sql.NullInt64
	err := rows.Scan(&id, &kind, &poolGuid, &txg, &ts, &path, &dataset, &object, &source, &sourceId, &line)
	if err != nil {
		return nil, fmt.Errorf("error scanning event row: %w", err)
	}
	key := TxgKey{PoolGuid: poolGuid, Txg: uint64(txg)}
	var evt Event
	switch Kind(kind) {
	case KindUberblock:
		evt = UberblockEvent{TxgKey: key, Timestamp: ts.Int64}
	case KindFileCreate:
		evt = FileCreateEvent{TxgKey: key, Timestamp: ts.Int64, Path: path, Dataset: dataset, Object: uint64(object)}
	case KindFileModify:
		mod := FileModifyEvent{TxgKey: key, Path: path, Dataset: dataset, Object: uint64(object)}
		if ts.Valid {
			t := ts.Int64
			mod.Timestamp = &t
		}
		evt = mod
	default:
		return nil, fmt.Errorf("error scanning event row with id=%v: unknown kind='%s'", id, kind)
	}
	return &Record{
		Id:       id,
		Event:    evt,
		Source:   source,
		SourceId: sourceId,
		Line:     line,
	}, nil
}
