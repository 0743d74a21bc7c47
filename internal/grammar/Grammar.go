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

package grammar

import "regexp"

// Tag is the kind of record a line of zdb output was classified as.
type Tag int

const (
	TagIgnore Tag = iota
	TagSegment
	TagBlockPointer
	TagObjPath
	TagObjGen
	TagObjMtime
	TagObjCrtime
	TagObjHeaderData
	TagDatasetHeader
	TagPoolGuid
	TagUbSlot
	TagUbTxg
	TagUbTime
)

var tagNames = map[Tag]string{
	TagIgnore:        "ignore",
	TagSegment:       "segment",
	TagBlockPointer:  "block_pointer",
	TagObjPath:       "obj_path",
	TagObjGen:        "obj_gen",
	TagObjMtime:      "obj_mtime",
	TagObjCrtime:     "obj_crtime",
	TagObjHeaderData: "obj_header_data",
	TagDatasetHeader: "dataset_header",
	TagPoolGuid:      "pool_guid",
	TagUbSlot:        "ub_slot",
	TagUbTxg:         "ub_txg",
	TagUbTime:        "ub_time",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return "unknown"
}

// LineMatch is the result of classifying a single line. Fields holds the capture groups of the pattern that matched,
// in order.
type LineMatch struct {
	Tag    Tag
	Fields []string
}

type Pattern struct {
	Tag   Tag
	Regex *regexp.Regexp
}

// Grammar is an ordered list of patterns. The first pattern that matches a line decides its tag, so cheap and
// frequent patterns should come first. Lines matching no pattern are tagged TagIgnore.
type Grammar struct {
	Name     string
	Patterns []Pattern
}

func (g *Grammar) Classify(line string) LineMatch {
	for _, p := range g.Patterns {
		m := p.Regex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return LineMatch{
			Tag:    p.Tag,
			Fields: m[1:],
		}
	}
	return LineMatch{Tag: TagIgnore}
}
