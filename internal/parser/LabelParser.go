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

package parser

import (
	"strconv"

	"github.com/jackbister/zdbtimeline/internal/events"
	"github.com/jackbister/zdbtimeline/internal/grammar"
	"go.uber.org/zap"
)

type uberblockState struct {
	slot      *uint64
	txg       *uint64
	timestamp *int64
}

// resetSlot is called for every Uberblock[n] line. A new slot is a new event.
func (s *uberblockState) resetSlot(slot uint64) {
	s.slot = &slot
	s.txg = nil
	s.timestamp = nil
}

// LabelParser emits one uberblock event per uberblock slot in "zdb -P -uuu -l <device>" output, as soon as both the
// txg and the timestamp of the slot have been read.
type LabelParser struct {
	// The guid is kept as a string. It is an opaque identifier and may not fit in an int64.
	poolGuid string

	ub uberblockState

	logger *zap.Logger
}

func NewLabelParser(logger *zap.Logger) *LabelParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LabelParser{
		logger: logger,
	}
}

func (p *LabelParser) Format() Format {
	return FormatLabel
}

func (p *LabelParser) ProcessLine(line string) (events.Event, bool) {
	return p.ProcessMatch(grammar.LabelGrammar.Classify(line))
}

func (p *LabelParser) ProcessMatch(m grammar.LineMatch) (events.Event, bool) {
	switch m.Tag {
	case grammar.TagPoolGuid:
		p.poolGuid = m.Fields[0]
		p.logger.Debug("matched pool guid", zap.String("poolGuid", p.poolGuid))
	case grammar.TagUbSlot:
		slot, err := strconv.ParseUint(m.Fields[0], 10, 64)
		if err != nil {
			p.logger.Debug("skipping uberblock line with invalid slot", zap.String("slot", m.Fields[0]), zap.Error(err))
			return nil, false
		}
		p.ub.resetSlot(slot)
	case grammar.TagUbTxg:
		txg, err := strconv.ParseUint(m.Fields[0], 10, 64)
		if err != nil {
			p.logger.Debug("skipping txg line with invalid txg", zap.String("txg", m.Fields[0]), zap.Error(err))
			return nil, false
		}
		p.ub.txg = &txg
		return p.spawnEvent()
	case grammar.TagUbTime:
		ts, err := strconv.ParseInt(m.Fields[0], 10, 64)
		if err != nil {
			p.logger.Debug("skipping timestamp line with invalid timestamp", zap.String("timestamp", m.Fields[0]), zap.Error(err))
			return nil, false
		}
		p.ub.timestamp = &ts
		return p.spawnEvent()
	}
	return nil, false
}

func (p *LabelParser) spawnEvent() (events.Event, bool) {
	if p.ub.txg == nil || p.ub.timestamp == nil {
		return nil, false
	}
	evt := events.UberblockEvent{
		TxgKey:    events.TxgKey{PoolGuid: p.poolGuid, Txg: *p.ub.txg},
		Timestamp: *p.ub.timestamp,
	}
	p.ub.txg = nil
	p.ub.timestamp = nil
	p.logger.Debug("emitting uberblock event",
		zap.Uint64("txg", evt.Txg),
		zap.Int64("timestamp", evt.Timestamp))
	return evt, true
}
