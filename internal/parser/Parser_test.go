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
	"testing"
	"time"

	"github.com/jackbister/zdbtimeline/internal/grammar"
)

func TestDetect(t *testing.T) {
	cases := map[string]Format{
		"Dataset pool1/fs1 [ZPL], ID 21, cr_txg 1, 19.5K, 7 objects": FormatDataset,
		grammar.LabelSeparator:                      FormatLabel,
		"Dataset pool1/vol [ZVOL], ID 22":           FormatUnknown,
		"2021/02/01 00:00:00 some other log format": FormatUnknown,
		"": FormatUnknown,
	}
	for line, expected := range cases {
		if f := Detect(line); f != expected {
			t.Fatalf("expected format=%v for line='%s' but got %v", expected, line, f)
		}
	}
}

func TestNew(t *testing.T) {
	if p := New(FormatDataset, nil, nil); p == nil || p.Format() != FormatDataset {
		t.Fatal("expected a dataset parser")
	}
	if p := New(FormatLabel, nil, nil); p == nil || p.Format() != FormatLabel {
		t.Fatal("expected a label parser")
	}
	if p := New(FormatUnknown, nil, nil); p != nil {
		t.Fatal("expected no parser for an unknown format")
	}
}

func TestParseZdbTime(t *testing.T) {
	ts, err := ParseZdbTime("Nov", "19", "12:23:57", "2013", nil)
	if err != nil {
		t.Fatalf("got error when parsing time: %v", err)
	}
	if expected := time.Date(2013, 11, 19, 12, 23, 57, 0, time.UTC).Unix(); ts != expected {
		t.Fatalf("expected ts=%v but got %v", expected, ts)
	}
	ts, err = ParseZdbTime("Jun", "4", "08:07:06", "2014", time.UTC)
	if err != nil {
		t.Fatalf("got error when parsing time with single digit day: %v", err)
	}
	if expected := time.Date(2014, 6, 4, 8, 7, 6, 0, time.UTC).Unix(); ts != expected {
		t.Fatalf("expected ts=%v but got %v", expected, ts)
	}
}

func TestParseZdbTime_Invalid(t *testing.T) {
	cases := [][4]string{
		{"Smarch", "19", "12:23:57", "2013"},
		{"Nov", "32", "12:23:57", "2013"},
		{"Nov", "19", "25:00:00", "2013"},
		{"Nov", "19", "12:23:57", "99999"},
	}
	for _, c := range cases {
		if _, err := ParseZdbTime(c[0], c[1], c[2], c[3], nil); err == nil {
			t.Fatalf("expected error when parsing %v", c)
		}
	}
}

func TestParseTimeFilter(t *testing.T) {
	parsed, err := ParseTimeFilter("1384818880", time.UTC)
	if err != nil {
		t.Fatalf("got error when parsing POSIX timestamp: %v", err)
	}
	if parsed.Unix() != 1384818880 {
		t.Fatalf("expected 1384818880 but got %v", parsed.Unix())
	}
	parsed, err = ParseTimeFilter("2013-11-19 12:23:57", time.UTC)
	if err != nil {
		t.Fatalf("got error when parsing date: %v", err)
	}
	if expected := time.Date(2013, 11, 19, 12, 23, 57, 0, time.UTC); !parsed.Equal(expected) {
		t.Fatalf("expected %v but got %v", expected, parsed)
	}
}
