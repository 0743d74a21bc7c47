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

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Lines of "zdb -P -bbbbbb -dddddd <dataset>" output look like this:
//
//	Dataset poolv7r0/filesim [ZPL], ID 21, cr_txg 1, 19.5K, 7 objects
//	    Object  lvl   iblk   dblk  dsize  lsize   %full  type
//	        12    1  16384  12288  12288  12288  100.00  ZFS plain file (K=inherit) (Z=inherit)
//	    path    /foo/bar
//	    mtime   Wed Nov 20 23:40:03 2013
//	    crtime  Tue Nov 19 12:23:57 2013
//	    gen     25
//	Indirect blocks:
//	       0 L1  DVA[0]=<6:3c10e00:400> DVA[1]=<0:3940000:400> [L1 ZFS plain file] fletcher4 lzjb LE contiguous unique double size=4000L/400P birth=3110L/3110P fill=2 cksum=...
//	       0  L0 DVA[0]=<6:3cafe00:20000> [L0 ZFS plain file] fletcher4 uncompressed LE contiguous unique single size=20000L/20000P birth=3110L/3110P fill=1 cksum=...
//	   segment [0000000000000000, 0000000000020000) size  128K

var datasetHeaderRegex = regexp.MustCompile(`^\s*Dataset\s+(\S+)\s+\[ZPL\]`)

var DatasetGrammar = Grammar{
	Name: "zdb_dataset",
	Patterns: []Pattern{
		{Tag: TagSegment, Regex: regexp.MustCompile(`^\s*segment\s*\[`)},
		// The level is the L<digits> token right after the offset. There may be 1-3 DVAs and any number of flags
		// before birth, so everything up to it is skipped.
		{Tag: TagBlockPointer, Regex: regexp.MustCompile(`^\s*[0-9a-fA-F]+\s+L(\d+)\s.*?\b(birth=\S*)`)},
		{Tag: TagObjPath, Regex: regexp.MustCompile(`^\s*path\s+(.*\S)\s*$`)},
		{Tag: TagObjGen, Regex: regexp.MustCompile(`^\s*gen\s+(\d+)\s*$`)},
		{Tag: TagObjMtime, Regex: regexp.MustCompile(`^\s*mtime\s+\S+\s+(\S+)\s+(\d+)\s+(\S+)\s+(\d+)\s*$`)},
		{Tag: TagObjCrtime, Regex: regexp.MustCompile(`^\s*crtime\s+\S+\s+(\S+)\s+(\d+)\s+(\S+)\s+(\d+)\s*$`)},
		{Tag: TagObjHeaderData, Regex: regexp.MustCompile(`^\s*(\d+)\s+\d+\s+\d+\s+\d+\s+\d+\s+\d+\s+\d+\.\d+\s+(.*\S)\s*$`)},
		{Tag: TagDatasetHeader, Regex: datasetHeaderRegex},
	},
}

// IsDatasetHeader reports whether line is the header zdb prints before the objects of a ZPL dataset.
func IsDatasetHeader(line string) bool {
	return datasetHeaderRegex.MatchString(line)
}

// ParseBirthTxg extracts the logical birth txg from a token like "birth=25406L/25406P".
func ParseBirthTxg(token string) (uint64, error) {
	s := strings.TrimPrefix(token, "birth=")
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("failed to parse birth txg: token='%s' does not start with a number", token)
	}
	if end < len(s) && s[end] != 'L' && s[end] != '/' {
		return 0, fmt.Errorf("failed to parse birth txg: unexpected character='%c' after number in token='%s'", s[end], token)
	}
	txg, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse birth txg: failed to parse value='%s' as uint64: %w", s[:end], err)
	}
	return txg, nil
}
