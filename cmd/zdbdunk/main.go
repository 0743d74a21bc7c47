// Copyright 2021 Jack Bister
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

package main

import (
	"flag"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jackbister/zdbtimeline/internal/fakedump"
)

func main() {
	kind := flag.String("kind", "dataset", "The kind of dump to write. Either 'dataset' or 'label'.")
	numFiles := flag.Int("numFiles", 1, "The number of dumps that will be written. The files will be named <kind>-*.zdb where * is an increasing number.")
	seed := flag.Int64("seed", 0, "The seed of the first dump. Each following dump uses the next seed. 0 means a random seed.")
	name := flag.String("name", "", "The dataset or pool name. Generated if empty.")
	files := flag.Int("files", 100, "The number of plain files in each dataset dump.")
	maxBlocks := flag.Int("maxBlocks", 4, "The maximum number of data blocks per file in dataset dumps.")
	uberblocks := flag.Int("uberblocks", 128, "The number of uberblocks in each label dump.")
	sleepTime := flag.Duration("sleepTime", 0, "If set, the dumps are rewritten with a new seed after sleeping this long, until the process is killed.")

	flag.Parse()

	var write func(io.Writer, fakedump.Options) (fakedump.Stats, error)
	switch *kind {
	case "dataset":
		write = fakedump.WriteDataset
	case "label":
		write = fakedump.WriteLabel
	default:
		log.Fatal("Unknown kind " + *kind + ", expected 'dataset' or 'label'")
	}

	opts := fakedump.Options{
		Seed:       *seed,
		Name:       *name,
		Files:      *files,
		MaxBlocks:  *maxBlocks,
		Uberblocks: *uberblocks,
		Start:      time.Now().Add(-24 * time.Hour),
	}
	for {
		for i := 0; i < *numFiles; i++ {
			filename := *kind + "-" + strconv.Itoa(i) + ".zdb"
			file, err := os.Create(filename)
			if err != nil {
				log.Fatal("Got error when creating file "+filename+":", err)
			}
			stats, err := write(file, opts)
			file.Close()
			if err != nil {
				log.Fatal("Got error when writing file "+filename+":", err)
			}
			log.Println("Wrote", stats.Events(), "events to", filename)
			if opts.Seed != 0 {
				opts.Seed++
			}
		}
		if sleepTime.Nanoseconds() == 0 {
			return
		}
		time.Sleep(*sleepTime)
		opts.Start = time.Now().Add(-24 * time.Hour)
	}
}
