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
	"strings"
	"time"

	"github.com/jackbister/zdbtimeline/internal/events"
	"github.com/jackbister/zdbtimeline/internal/grammar"
	"go.uber.org/zap"
)

// PlainFileType is the substring of the object type column that marks a regular file.
const PlainFileType = "ZFS plain file"

// objectState is what has been read so far about the object currently being listed.
type objectState struct {
	number  *uint64
	objType *string
	path    *string
	genTxg  *uint64
	crtime  *int64
	// Only the top level block pointer may carry the mtime of the file, so it is cleared as soon as a modify event
	// uses it.
	mtime *int64
}

// resetObject is called for every new object header.
func (s *objectState) resetObject(number uint64, objType string) {
	s.number = &number
	s.objType = &objType
	s.path = nil
	s.genTxg = nil
	s.crtime = nil
	s.mtime = nil
}

func (s *objectState) isPlainFile() bool {
	return s.objType != nil && strings.Contains(*s.objType, PlainFileType)
}

func (s *objectState) pathOrEmpty() string {
	if s.path == nil {
		return ""
	}
	return *s.path
}

func (s *objectState) numberOrZero() uint64 {
	if s.number == nil {
		return 0
	}
	return *s.number
}

// DatasetParser emits file create and modify events from "zdb -P -bbbbbb -dddddd <dataset>" output:
//
//  1. The dataset header gives the dataset name, which is added to all events.
//  2. An object header resets the object state and gives the object number and type. Objects that are not plain
//     files never produce events.
//  3. Once both gen and crtime have been read a create event is emitted.
//  4. The first block pointer of the object produces a modify event with the birth txg of the block pointer and the
//     mtime of the file. The mtime is then forgotten.
//  5. Every later level 0 block pointer produces a modify event without a timestamp. The time has to be found later
//     by joining on the txg.
type DatasetParser struct {
	loc *time.Location

	datasetName string
	// There is no pool guid in a dataset dump. The dataset name is used in its place so that txgs from different
	// pools do not clash.
	poolGuid string

	obj objectState

	logger *zap.Logger
}

func NewDatasetParser(loc *time.Location, logger *zap.Logger) *DatasetParser {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetParser{
		loc:    loc,
		logger: logger,
	}
}

func (p *DatasetParser) Format() Format {
	return FormatDataset
}

func (p *DatasetParser) ProcessLine(line string) (events.Event, bool) {
	return p.ProcessMatch(grammar.DatasetGrammar.Classify(line))
}

func (p *DatasetParser) ProcessMatch(m grammar.LineMatch) (events.Event, bool) {
	switch m.Tag {
	case grammar.TagBlockPointer:
		return p.blockPointer(m.Fields)
	case grammar.TagObjPath:
		path := m.Fields[0]
		p.obj.path = &path
	case grammar.TagObjGen:
		gen, err := strconv.ParseUint(m.Fields[0], 10, 64)
		if err != nil {
			p.logger.Debug("skipping gen line with invalid txg", zap.String("gen", m.Fields[0]), zap.Error(err))
			return nil, false
		}
		p.obj.genTxg = &gen
		return p.spawnCreateEvent()
	case grammar.TagObjCrtime:
		crtime, err := ParseZdbTime(m.Fields[0], m.Fields[1], m.Fields[2], m.Fields[3], p.loc)
		if err != nil {
			p.logger.Debug("skipping crtime line with invalid time", zap.Strings("fields", m.Fields), zap.Error(err))
			return nil, false
		}
		p.obj.crtime = &crtime
		return p.spawnCreateEvent()
	case grammar.TagObjMtime:
		mtime, err := ParseZdbTime(m.Fields[0], m.Fields[1], m.Fields[2], m.Fields[3], p.loc)
		if err != nil {
			p.logger.Debug("skipping mtime line with invalid time", zap.Strings("fields", m.Fields), zap.Error(err))
			return nil, false
		}
		// The modify event is emitted by the first block pointer
		p.obj.mtime = &mtime
	case grammar.TagObjHeaderData:
		number, err := strconv.ParseUint(m.Fields[0], 10, 64)
		if err != nil {
			p.logger.Debug("skipping object header with invalid object number", zap.String("object", m.Fields[0]), zap.Error(err))
			return nil, false
		}
		p.obj.resetObject(number, m.Fields[1])
		p.logger.Debug("matched object header",
			zap.Uint64("object", number),
			zap.String("type", m.Fields[1]))
	case grammar.TagDatasetHeader:
		p.datasetName = m.Fields[0]
		p.poolGuid = p.datasetName
		p.logger.Debug("matched dataset header", zap.String("dataset", p.datasetName))
	}
	return nil, false
}

func (p *DatasetParser) spawnCreateEvent() (events.Event, bool) {
	if p.obj.genTxg == nil || p.obj.crtime == nil || !p.obj.isPlainFile() {
		return nil, false
	}
	evt := events.FileCreateEvent{
		TxgKey:    events.TxgKey{PoolGuid: p.poolGuid, Txg: *p.obj.genTxg},
		Timestamp: *p.obj.crtime,
		Path:      p.obj.pathOrEmpty(),
		Dataset:   p.datasetName,
		Object:    p.obj.numberOrZero(),
	}
	p.obj.genTxg = nil
	p.obj.crtime = nil
	p.logger.Debug("emitting file create event",
		zap.Uint64("txg", evt.Txg),
		zap.Int64("crtime", evt.Timestamp),
		zap.String("path", evt.Path))
	return evt, true
}

func (p *DatasetParser) blockPointer(fields []string) (events.Event, bool) {
	if !p.obj.isPlainFile() {
		return nil, false
	}
	level := fields[0]
	if p.obj.mtime == nil && level != "0" {
		// An indirect block below the top level. Its children are listed separately.
		return nil, false
	}
	txg, err := grammar.ParseBirthTxg(fields[1])
	if err != nil {
		p.logger.Debug("skipping block pointer with invalid birth txg", zap.String("birth", fields[1]), zap.Error(err))
		return nil, false
	}
	evt := events.FileModifyEvent{
		TxgKey:    events.TxgKey{PoolGuid: p.poolGuid, Txg: txg},
		Timestamp: p.obj.mtime,
		Path:      p.obj.pathOrEmpty(),
		Dataset:   p.datasetName,
		Object:    p.obj.numberOrZero(),
	}
	p.obj.mtime = nil
	p.logger.Debug("emitting file modify event",
		zap.Uint64("txg", evt.Txg),
		zap.Bool("hasMtime", evt.Timestamp != nil),
		zap.String("path", evt.Path))
	return evt, true
}
