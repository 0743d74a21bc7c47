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
	"time"

	"github.com/jackbister/zdbtimeline/internal/events"
	"github.com/jackbister/zdbtimeline/internal/grammar"
	"go.uber.org/zap"
)

// Format is the kind of zdb dump a stream contains.
type Format int

const (
	FormatUnknown Format = 0
	// FormatDataset is the output of "zdb -P -bbbbbb -dddddd <dataset>"
	FormatDataset Format = 1
	// FormatLabel is the output of "zdb -P -uuu -l <device>"
	FormatLabel Format = 2
)

func (f Format) String() string {
	switch f {
	case FormatDataset:
		return "dataset"
	case FormatLabel:
		return "label"
	}
	return "unknown"
}

// DumpParser turns lines of a zdb dump into events. A DumpParser holds the state of a single stream and must not
// be shared between goroutines or streams.
type DumpParser interface {
	Format() Format
	// ProcessLine classifies line and applies it to the parser state. ok is true if the line completed an event.
	ProcessLine(line string) (evt events.Event, ok bool)
	ProcessMatch(m grammar.LineMatch) (evt events.Event, ok bool)
}

func IsDatasetDump(line string) bool {
	return grammar.IsDatasetHeader(line)
}

func IsLabelDump(line string) bool {
	return grammar.IsLabelSeparator(line)
}

// Detect checks a probe line against the header of each supported format. FormatUnknown means that the input is not
// supported, which is not an error in itself.
func Detect(line string) Format {
	if IsDatasetDump(line) {
		return FormatDataset
	}
	if IsLabelDump(line) {
		return FormatLabel
	}
	return FormatUnknown
}

// New creates a fresh parser for the given format. loc is the time zone zdb ran in and is only used for dataset
// dumps. It returns nil for FormatUnknown.
func New(format Format, loc *time.Location, logger *zap.Logger) DumpParser {
	switch format {
	case FormatDataset:
		return NewDatasetParser(loc, logger)
	case FormatLabel:
		return NewLabelParser(logger)
	}
	return nil
}
