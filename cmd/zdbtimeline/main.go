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
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackbister/zdbtimeline/internal/config"
	"github.com/jackbister/zdbtimeline/internal/dependencyinjection"
	"github.com/jackbister/zdbtimeline/internal/events"
	"github.com/jackbister/zdbtimeline/internal/ingest"
	"github.com/jackbister/zdbtimeline/internal/parser"
	"github.com/jackbister/zdbtimeline/internal/web"

	"go.uber.org/dig"
	"go.uber.org/zap"
)

var versionString string // This must be set using -ldflags "-X main.versionString=<version>" when building for --version to work

var cfgFileFlag string
var databaseFileFlag string
var debugFlag bool
var endFlag string
var printVersion bool
var startFlag string
var timezoneFlag string
var watchFlag string
var webAddrFlag string

func main() {
	flag.StringVar(&cfgFileFlag, "config", "zdbtimeline.json", "The name of the file containing the configuration for zdbtimeline. Command line flags override the values in the file.")
	flag.StringVar(&databaseFileFlag, "dbfile", "zdbtimeline.db", "The name of the file in which events will be stored. If the name ':memory:' is used, no file will be created and everything will be stored in memory. If the file does not exist, a new file will be created.")
	flag.BoolVar(&debugFlag, "debug", false, "Log every event and use development logging.")
	flag.StringVar(&startFlag, "start", "", "Only print events at or after this time. Accepts most date formats and POSIX timestamps.")
	flag.StringVar(&endFlag, "end", "", "Only print events at or before this time. Accepts most date formats and POSIX timestamps.")
	flag.BoolVar(&printVersion, "version", false, "Print version info and quit.")
	flag.StringVar(&timezoneFlag, "timezone", "", "The IANA time zone of the machine zdb ran on, for example 'Europe/Stockholm'. mtime and crtime are interpreted in this time zone. (default UTC)")
	flag.StringVar(&watchFlag, "watch", "", "A glob pattern. Dumps matching the pattern are ingested when they are created or changed.")
	flag.StringVar(&webAddrFlag, "webaddr", "", "Enables the web API and sets the address it listens on, for example ':8080'.")
	flag.Parse()

	if printVersion {
		if versionString == "" {
			fmt.Println("(unknown version)")
			return
		}
		fmt.Println(versionString)
		return
	}

	logger, err := newLogger(debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := readConfig(logger)
	if err != nil {
		logger.Fatal("error reading configuration", zap.Error(err))
	}

	c, err := dependencyinjection.InjectionContextFromConfig(cfg, debugFlag, logger)
	if err != nil {
		logger.Fatal("error creating injection context", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = c.Invoke(func(p struct {
		dig.In

		Ingester  *ingest.Ingester
		Publisher events.Publisher
		Repo      events.Repository
		Db        *sql.DB
	}) error {
		defer p.Db.Close()
		sources := ingestFiles(ctx, p.Ingester, flag.Args(), logger)

		if cfg.Watch.Enabled || cfg.Web.Enabled {
			serve(ctx, c, cfg, logger)
			p.Publisher.Close()
			return nil
		}

		p.Publisher.Close()
		return printTimeline(p.Repo, sources, cfg)
	})
	if err != nil {
		logger.Fatal("got error", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	// Events are printed to stdout, so logs go to stderr.
	return zap.NewProduction()
}

func readConfig(logger *zap.Logger) (*config.Config, error) {
	cfg := config.Default()
	cfgFile, err := os.Open(cfgFileFlag)
	if err == nil {
		defer cfgFile.Close()
		cfg, err = config.FromJSON(cfgFile, logger)
		if err != nil {
			return nil, fmt.Errorf("error parsing configuration from file '%v': %w", cfgFileFlag, err)
		}
		logger.Info("Using configuration from file", zap.String("fileName", cfgFileFlag))
	} else {
		logger.Info("Could not open config file, will use command line configuration", zap.String("fileName", cfgFileFlag))
	}

	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	if setFlags["dbfile"] {
		cfg.SQLite.DatabaseFile = databaseFileFlag
	}
	if timezoneFlag != "" {
		loc, err := time.LoadLocation(timezoneFlag)
		if err != nil {
			return nil, fmt.Errorf("error loading timezone='%s': %w", timezoneFlag, err)
		}
		cfg.Timezone = loc
	}
	if watchFlag != "" {
		cfg.Watch.Enabled = true
		cfg.Watch.Glob = watchFlag
	}
	if webAddrFlag != "" {
		cfg.Web.Enabled = true
		cfg.Web.Address = webAddrFlag
	}
	return cfg, nil
}

func ingestFiles(ctx context.Context, in *ingest.Ingester, fileNames []string, logger *zap.Logger) []string {
	sources := make([]string, 0, len(fileNames))
	for _, fileName := range fileNames {
		_, err := in.IngestFile(ctx, fileName)
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			logger.Warn("skipping file that is not a supported zdb dump", zap.String("fileName", fileName))
			continue
		} else if err != nil {
			logger.Error("got error when ingesting file", zap.String("fileName", fileName), zap.Error(err))
			continue
		}
		sources = append(sources, fileName)
	}
	return sources
}

func serve(ctx context.Context, c *dig.Container, cfg *config.Config, logger *zap.Logger) {
	var wg sync.WaitGroup
	if cfg.Watch.Enabled {
		err := c.Invoke(func(dw *ingest.DumpWatcher) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := dw.Start(ctx)
				if err != nil {
					logger.Error("DumpWatcher stopped", zap.Error(err))
				}
			}()
		})
		if err != nil {
			logger.Fatal("error creating DumpWatcher", zap.Error(err))
		}
	}
	if cfg.Web.Enabled {
		err := c.Invoke(func(w web.Web) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := w.Serve(ctx)
				if err != nil {
					logger.Error("web server stopped", zap.Error(err))
				}
			}()
		})
		if err != nil {
			logger.Fatal("error creating web server", zap.Error(err))
		}
	}
	wg.Wait()
}

func printTimeline(repo events.Repository, sources []string, cfg *config.Config) error {
	var f events.Filter
	if startFlag != "" {
		t, err := parser.ParseTimeFilter(startFlag, cfg.Timezone)
		if err != nil {
			return fmt.Errorf("error parsing start='%s': %w", startFlag, err)
		}
		f.StartTime = &t
	}
	if endFlag != "" {
		t, err := parser.ParseTimeFilter(endFlag, cfg.Timezone)
		if err != nil {
			return fmt.Errorf("error parsing end='%s': %w", endFlag, err)
		}
		f.EndTime = &t
	}
	for _, source := range sources {
		f.Source = source
		recs, err := repo.Filter(f)
		if err != nil {
			return fmt.Errorf("error reading events for source=%s: %w", source, err)
		}
		for _, rec := range recs {
			fmt.Printf("%s\t%s\t%s\n", events.SourceShort(rec.Event), events.SourceLong(rec.Event), events.ShortMessage(rec.Event))
		}
	}
	return nil
}
