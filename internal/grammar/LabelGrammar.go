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

// Lines of "zdb -P -uuu -l <device>" output look like this:
//
//	--------------------------------------------
//	LABEL 0
//	--------------------------------------------
//	    pool_guid: 9751539623123413467
//	    Uberblock[3]
//	        magic = 0000000000bab10c
//	        version = 5000
//	        txg = 5000
//	        guid_sum = 1190453340519458014
//	        timestamp = 1384818880 UTC = Tue Nov 19 10:54:40 2013

// LabelSeparator is the line zdb prints around each label header.
const LabelSeparator = "--------------------------------------------"

// The separator is treated as a keyword, so a longer run of dashes also counts but "-----...abc" does not.
var labelSeparatorRegex = regexp.MustCompile(`^\s*-{44}(?:[^0-9A-Za-z_$]|$)`)

var LabelGrammar = Grammar{
	Name: "zdb_label",
	Patterns: []Pattern{
		{Tag: TagPoolGuid, Regex: regexp.MustCompile(`^\s*pool_guid:\s*(\d+)`)},
		{Tag: TagUbSlot, Regex: regexp.MustCompile(`^\s*Uberblock\[(\d+)\]`)},
		{Tag: TagUbTxg, Regex: regexp.MustCompile(`^\s*txg\s*=\s*(\d+)`)},
		{Tag: TagUbTime, Regex: regexp.MustCompile(`^\s*timestamp\s*=\s*(\d+)`)},
	},
}

// IsLabelSeparator reports whether line is the dashed separator that starts a vdev label listing.
func IsLabelSeparator(line string) bool {
	return labelSeparatorRegex.MatchString(line)
}
