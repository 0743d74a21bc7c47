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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackbister/zdbtimeline/internal/config"
	"github.com/jackbister/zdbtimeline/internal/events"
	"github.com/jackbister/zdbtimeline/internal/parser"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// ErrUnsupportedFormat is returned when none of the probed lines identifies the input as a known zdb dump.
var ErrUnsupportedFormat = errors.New("unsupported dump format")

const maxLineSize = 1024 * 1024

// Result describes one ingestion run.
type Result struct {
	Source   string
	SourceId string
	Format   parser.Format
	Lines    int64
	Events   int
}

type Ingester struct {
	cfg       *config.Config
	publisher events.Publisher
	repo      events.Repository

	logger *zap.Logger
}

type IngesterParams struct {
	dig.In

	Cfg       *config.Config
	Publisher events.Publisher
	Repo      events.Repository
	Logger    *zap.Logger
}

func NewIngester(p IngesterParams) *Ingester {
	return &Ingester{
		cfg:       p.Cfg,
		publisher: p.Publisher,
		repo:      p.Repo,
		logger:    p.Logger,
	}
}

func (in *Ingester) IngestFile(ctx context.Context, filename string) (*Result, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("error opening file=%s: %w", filename, err)
	}
	defer f.Close()
	return in.Ingest(ctx, f, filename)
}

// Ingest reads a whole dump from r and publishes its events. The first ProbeLines non-blank lines are used to detect
// the format of the dump. If none of them matches a known header, ErrUnsupportedFormat is returned and nothing is
// published.
//
// Once the whole dump has been read, its events are stored and the events of earlier runs over the same source are
// removed, so a source always reflects the latest ingested version of the dump.
func (in *Ingester) Ingest(ctx context.Context, r io.Reader, source string) (*Result, error) {
	startTime := time.Now()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	res := &Result{
		Source:   source,
		SourceId: uuid.NewString(),
	}

	var p parser.DumpParser
	probed := make([]string, 0, in.cfg.ProbeLines)
	nonBlank := 0
	for p == nil && scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Text()
		probed = append(probed, line)
		if strings.TrimSpace(line) == "" {
			continue
		}
		nonBlank++
		if format := parser.Detect(line); format != parser.FormatUnknown {
			res.Format = format
			p = parser.New(format, in.cfg.Timezone, in.logger.Named("parser"))
		} else if nonBlank >= in.cfg.ProbeLines {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading source=%s: %w", source, err)
	}
	if p == nil {
		return nil, fmt.Errorf("error detecting format of source=%s after %v non-blank lines: %w", source, nonBlank, ErrUnsupportedFormat)
	}
	in.logger.Info("detected dump format",
		zap.String("source", source),
		zap.String("sourceId", res.SourceId),
		zap.Stringer("format", res.Format))

	handle := func(line string) {
		res.Lines++
		evt, ok := p.ProcessLine(line)
		if !ok {
			return
		}
		res.Events++
		in.publisher.PublishEvent(events.Record{
			Event:    evt,
			Source:   source,
			SourceId: res.SourceId,
			Line:     res.Lines,
		})
	}
	for _, line := range probed {
		handle(line)
	}
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		handle(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading source=%s at line=%v: %w", source, res.Lines+1, err)
	}

	in.publisher.Flush()
	replaced, err := in.repo.DeleteOtherRuns(source, res.SourceId)
	if err != nil {
		return nil, fmt.Errorf("error removing earlier events of source=%s: %w", source, err)
	}
	if replaced > 0 {
		in.logger.Info("replaced events from earlier ingestion of source",
			zap.String("source", source),
			zap.Int64("numEvents", replaced))
	}

	in.logger.Info("ingested dump",
		zap.String("source", source),
		zap.String("sourceId", res.SourceId),
		zap.Int64("lines", res.Lines),
		zap.Int("numEvents", res.Events),
		zap.Stringer("duration", time.Since(startTime)))
	return res, nil
}
