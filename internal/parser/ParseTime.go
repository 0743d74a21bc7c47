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
	"fmt"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
)

// zdb prints znode times like "Tue Nov 19 12:23:57 2013". The weekday is redundant and is not passed in.
const zdbTimeLayout = "Jan 2 15:04:05 2006"

// ParseZdbTime converts the month, day, clock and year tokens of an mtime/crtime line to a POSIX timestamp.
// zdb prints these times in the local time of the machine it ran on, so loc must be that time zone. A nil loc means UTC.
func ParseZdbTime(month, day, clock, year string, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	value := month + " " + day + " " + clock + " " + year
	t, err := time.ParseInLocation(zdbTimeLayout, value, loc)
	if err != nil {
		return 0, fmt.Errorf("failed to parse time: failed to parse value='%s': %w", value, err)
	}
	return t.Unix(), nil
}

// ParseTimeFilter parses a user supplied time, e.g. a startTime query parameter.
// Plain integers are POSIX timestamps, anything else is handed to dateparse and interpreted in loc.
func ParseTimeFilter(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(i, 0).In(loc), nil
	}
	t, err := dateparse.ParseIn(value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time: failed to parse value='%s': %w", value, err)
	}
	return t, nil
}
