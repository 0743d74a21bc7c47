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

// Package fakedump writes synthetic zdb output. It is used to test the parsers against dumps bigger than the ones
// that are practical to check in, and by zdbdunk to create test input.
package fakedump

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit"
	"github.com/jackbister/zdbtimeline/internal/grammar"
)

const zdbTimeLayout = "Mon Jan _2 15:04:05 2006"

type Options struct {
	// Seed for gofakeit. 0 means a random seed.
	Seed int64

	// Name is the dataset name for dataset dumps and the pool name for label dumps. A name is generated if empty.
	Name string

	// Files is the number of plain files in a dataset dump. Every file also gets a parent directory object, which
	// never produces events.
	Files int
	// MaxBlocks is the maximum number of level 0 blocks of a file.
	MaxBlocks int

	// Uberblocks is the number of uberblock slots in a label dump.
	Uberblocks int

	// Start is the creation time of the first file and the time of the first uberblock.
	Start time.Time
	// Location is the time zone that mtime and crtime are printed in.
	Location *time.Location
}

// Stats is the number of events a parser should emit for the written dump.
type Stats struct {
	Creates    int
	Modifies   int
	Uberblocks int
}

func (s Stats) Events() int {
	return s.Creates + s.Modifies + s.Uberblocks
}

func (o *Options) withDefaults() Options {
	ret := *o
	if ret.Files == 0 {
		ret.Files = 10
	}
	if ret.MaxBlocks < 1 {
		ret.MaxBlocks = 4
	}
	if ret.Uberblocks == 0 {
		ret.Uberblocks = 32
	}
	if ret.Start.IsZero() {
		ret.Start = time.Date(2013, 11, 19, 12, 0, 0, 0, time.UTC)
	}
	if ret.Location == nil {
		ret.Location = time.UTC
	}
	return ret
}

// WriteDataset writes output in the format of "zdb -P -bbbbbb -dddddd <dataset>".
func WriteDataset(w io.Writer, opts Options) (Stats, error) {
	o := opts.withDefaults()
	gofakeit.Seed(o.Seed)
	name := o.Name
	if name == "" {
		name = gofakeit.Generate("{hacker.noun}/{hacker.noun}")
		name = strings.ReplaceAll(name, " ", "-")
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Dataset %s [ZPL], ID %d, cr_txg 1, %dK, %d objects\n\n", name, gofakeit.Number(21, 500), gofakeit.Number(10, 9000), 2*o.Files+1)

	var stats Stats
	txg := uint64(gofakeit.Number(4, 100))
	now := o.Start
	object := 2
	for i := 0; i < o.Files; i++ {
		dir := "/" + strings.ReplaceAll(gofakeit.Generate("{hacker.noun}"), " ", "_")
		writeObjectHeader(bw, object, 1, 512, "ZFS directory")
		writeAttributes(bw, dir, txg, now.In(o.Location), now.In(o.Location))
		writeBlockPointer(bw, 0, 0, txg, "ZFS directory")
		object++

		path := fmt.Sprintf("%s/%s.%s", dir, strings.ReplaceAll(gofakeit.Generate("{hacker.verb}"), " ", "_"), gofakeit.RandString([]string{"txt", "log", "db", "conf", "jpg"}))
		blocks := gofakeit.Number(1, o.MaxBlocks)
		levels := 1
		if blocks > 1 {
			levels = 2
		}
		crtime := now
		genTxg := txg
		// Every block is written in a later txg than the one the file was created in.
		blockTxgs := make([]uint64, blocks)
		for b := range blockTxgs {
			txg += uint64(gofakeit.Number(1, 20))
			now = now.Add(time.Duration(gofakeit.Number(1, 600)) * time.Second)
			blockTxgs[b] = txg
		}
		writeObjectHeader(bw, object, levels, 131072, "ZFS plain file")
		writeAttributes(bw, path, genTxg, crtime.In(o.Location), now.In(o.Location))
		stats.Creates++
		fmt.Fprintln(bw, "Indirect blocks:")
		if blocks > 1 {
			// The L1 block was rewritten together with the last L0 block.
			writeBlockPointer(bw, 1, 0, txg, "ZFS plain file")
			stats.Modifies++
		}
		for b, bt := range blockTxgs {
			writeBlockPointer(bw, 0, b*0x20000, bt, "ZFS plain file")
			stats.Modifies++
		}
		fmt.Fprintf(bw, "\n\t\tsegment [0000000000000000, %016x) size %dK\n\n", blocks*0x20000, blocks*128)
		object++
		txg += uint64(gofakeit.Number(1, 5))
		now = now.Add(time.Duration(gofakeit.Number(1, 3600)) * time.Second)
	}

	err := bw.Flush()
	if err != nil {
		return Stats{}, fmt.Errorf("error writing dataset dump: %w", err)
	}
	return stats, nil
}

func writeObjectHeader(w io.Writer, object int, levels int, dblk int, objType string) {
	io.WriteString(w, "    Object  lvl   iblk   dblk  dsize  lsize   %full  type\n")
	fmt.Fprintf(w, "%10d %4d %6d %6d %6d %6d %7.2f  %s\n", object, levels, 131072, dblk, dblk, dblk, 100.0, objType)
	fmt.Fprintf(w, "\t\t\t\t\t\t\t\tbonus  System attributes\n")
	fmt.Fprintf(w, "\tdnode flags: USED_BYTES USERUSED_ACCOUNTED\n")
}

func writeAttributes(w io.Writer, path string, gen uint64, crtime time.Time, mtime time.Time) {
	fmt.Fprintf(w, "\tpath\t%s\n", path)
	fmt.Fprintf(w, "\tuid     0\n\tgid     0\n")
	fmt.Fprintf(w, "\tatime\t%s\n", mtime.Format(zdbTimeLayout))
	fmt.Fprintf(w, "\tmtime\t%s\n", mtime.Format(zdbTimeLayout))
	fmt.Fprintf(w, "\tctime\t%s\n", mtime.Format(zdbTimeLayout))
	fmt.Fprintf(w, "\tcrtime\t%s\n", crtime.Format(zdbTimeLayout))
	fmt.Fprintf(w, "\tgen\t%d\n", gen)
	fmt.Fprintf(w, "\tmode\t100644\n\tsize\t%d\n\tparent\t%d\n\tlinks\t1\n", gofakeit.Number(1, 1<<20), gofakeit.Number(2, 64))
}

func writeBlockPointer(w io.Writer, level int, offset int, birth uint64, objType string) {
	fmt.Fprintf(w, "%16x  L%d  DVA[0]=<0:%x:%x> [L%d %s] fletcher4 lz4 LE contiguous unique single size=20000L/%xP birth=%dL/%dP fill=1 cksum=%x:%x\n",
		offset, level, gofakeit.Number(0x1000, 0xfffffff), 0x20000, level, objType, gofakeit.Number(0x400, 0x20000), birth, birth, gofakeit.Number(0x1000, 0xffffff), gofakeit.Number(0x1000, 0xffffff))
}

// WriteLabel writes output in the format of "zdb -P -uuu -l <device>" with a single label.
func WriteLabel(w io.Writer, opts Options) (Stats, error) {
	o := opts.withDefaults()
	gofakeit.Seed(o.Seed)
	name := o.Name
	if name == "" {
		name = strings.ReplaceAll(gofakeit.Generate("{hacker.noun}"), " ", "")
	}
	poolGuid := fmt.Sprintf("%d%09d", gofakeit.Number(1, 999999999), gofakeit.Number(0, 999999999))

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, grammar.LabelSeparator)
	fmt.Fprintln(bw, "LABEL 0")
	fmt.Fprintln(bw, grammar.LabelSeparator)
	fmt.Fprintln(bw, "    version: 5000")
	fmt.Fprintf(bw, "    name: '%s'\n", name)
	fmt.Fprintln(bw, "    state: 0")
	txg := uint64(gofakeit.Number(1000, 100000))
	fmt.Fprintf(bw, "    txg: %d\n", txg+uint64(o.Uberblocks))
	fmt.Fprintf(bw, "    pool_guid: %s\n", poolGuid)
	fmt.Fprintf(bw, "    hostname: '%s'\n", strings.ReplaceAll(gofakeit.Generate("{hacker.noun}"), " ", "-"))

	var stats Stats
	now := o.Start
	for i := 0; i < o.Uberblocks; i++ {
		fmt.Fprintf(bw, "    Uberblock[%d]\n", i)
		fmt.Fprintln(bw, "\tmagic = 0000000000bab10c")
		fmt.Fprintln(bw, "\tversion = 5000")
		fmt.Fprintf(bw, "\ttxg = %d\n", txg)
		fmt.Fprintf(bw, "\tguid_sum = %d\n", gofakeit.Number(1, 1<<30))
		fmt.Fprintf(bw, "\ttimestamp = %d UTC = %s\n", now.Unix(), now.UTC().Format(zdbTimeLayout))
		fmt.Fprintf(bw, "\trootbp = DVA[0]=<0:%x:200> [L0 DMU objset] fletcher4 lz4 LE contiguous unique triple size=800L/200P birth=%dL/%dP fill=%d\n",
			gofakeit.Number(0x1000, 0xfffffff), txg, txg, gofakeit.Number(10, 500))
		stats.Uberblocks++
		txg++
		now = now.Add(time.Duration(gofakeit.Number(5, 30)) * time.Second)
	}

	err := bw.Flush()
	if err != nil {
		return Stats{}, fmt.Errorf("error writing label dump: %w", err)
	}
	return stats, nil
}
