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

package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jackbister/zdbtimeline/internal/config"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// DumpWatcher watches a glob pattern for zdb dumps. A dump is ingested once it has not been written to for
// SettleTime. If the file is written to again later it is ingested again. The repository skips the events it has
// already stored.
type DumpWatcher struct {
	cfg      *config.WatchConfig
	ingester *Ingester

	absGlob string
	dir     string

	// pending maps the absolute path of a file to the last time it was seen changing.
	pending map[string]time.Time

	logger *zap.Logger
}

type DumpWatcherParams struct {
	dig.In

	Cfg      *config.Config
	Ingester *Ingester
	Logger   *zap.Logger
}

func NewDumpWatcher(p DumpWatcherParams) (*DumpWatcher, error) {
	glob := p.Cfg.Watch.Glob
	absGlob, err := filepath.Abs(glob)
	if err != nil {
		return nil, fmt.Errorf("error geting absGlob for glob=%s: %w", glob, err)
	}
	// Fail early on a malformed pattern.
	if _, err := filepath.Match(absGlob, absGlob); err != nil {
		return nil, fmt.Errorf("error parsing glob=%s: %w", glob, err)
	}
	return &DumpWatcher{
		cfg:      p.Cfg.Watch,
		ingester: p.Ingester,

		absGlob: absGlob,
		dir:     filepath.Dir(absGlob),

		pending: map[string]time.Time{},

		logger: p.Logger,
	}, nil
}

// Start watches the directory of the glob until ctx is cancelled.
func (dw *DumpWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating DumpWatcher for dir=%s: %w", dw.dir, err)
	}
	defer watcher.Close()
	err = watcher.Add(dw.dir)
	if err != nil {
		return fmt.Errorf("error adding dir to DumpWatcher for dir=%s, glob=%s: %w", dw.dir, dw.absGlob, err)
	}

	err = dw.scanInitial()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(dw.cfg.ReadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			dw.handleFsEvent(evt, time.Now())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			dw.logger.Warn("got error from fsnotify",
				zap.String("dir", dw.dir),
				zap.Error(err))
		case <-ticker.C:
			dw.ingestSettled(ctx, time.Now())
		}
	}
}

func (dw *DumpWatcher) scanInitial() error {
	initial, err := filepath.Glob(dw.absGlob)
	if err != nil {
		return fmt.Errorf("got error when globbing using glob=%s: %w", dw.absGlob, err)
	}
	for _, file := range initial {
		info, err := os.Stat(file)
		if err != nil {
			dw.logger.Warn("got error when performing os.Stat on file matching glob",
				zap.String("fileName", file),
				zap.Error(err))
			continue
		}
		if info.IsDir() {
			continue
		}
		dw.pending[file] = info.ModTime()
	}
	dw.logger.Info("found initial dumps",
		zap.String("glob", dw.absGlob),
		zap.Int("numFiles", len(dw.pending)))
	return nil
}

func (dw *DumpWatcher) handleFsEvent(evt fsnotify.Event, now time.Time) {
	path, err := filepath.Abs(evt.Name)
	if err != nil {
		dw.logger.Warn("got error when performing filepath.Abs(evt.Name) after receiving fsnotify",
			zap.String("dir", dw.dir),
			zap.String("evtName", evt.Name),
			zap.Error(err))
		return
	}
	matched, err := filepath.Match(dw.absGlob, path)
	if err != nil || !matched {
		return
	}
	if evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		delete(dw.pending, path)
		return
	}
	if evt.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		dw.pending[path] = now
	}
}

// ingestSettled ingests every pending file that has not changed for SettleTime.
func (dw *DumpWatcher) ingestSettled(ctx context.Context, now time.Time) {
	for path, lastChange := range dw.pending {
		if now.Sub(lastChange) < dw.cfg.SettleTime {
			continue
		}
		delete(dw.pending, path)
		_, err := dw.ingester.IngestFile(ctx, path)
		if errors.Is(err, ErrUnsupportedFormat) {
			dw.logger.Info("skipping file that is not a supported zdb dump",
				zap.String("fileName", path))
		} else if err != nil {
			dw.logger.Warn("got error when ingesting dump",
				zap.String("fileName", path),
				zap.Error(err))
		}
	}
}
