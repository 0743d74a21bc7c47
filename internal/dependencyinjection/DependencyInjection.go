// Copyright 2023 Jack Bister
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dependencyinjection

import (
	"database/sql"
	"fmt"

	"github.com/jackbister/zdbtimeline/internal/config"
	"github.com/jackbister/zdbtimeline/internal/events"
	"github.com/jackbister/zdbtimeline/internal/ingest"
	"github.com/jackbister/zdbtimeline/internal/web"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

func InjectionContextFromConfig(cfg *config.Config, debug bool, logger *zap.Logger) (*dig.Container, error) {
	c := dig.New()
	err := provideBasics(c, cfg, logger)
	if err != nil {
		return nil, err
	}
	err = provideStorage(c)
	if err != nil {
		return nil, err
	}
	err = providePublisher(c, debug)
	if err != nil {
		return nil, err
	}
	err = c.Provide(ingest.NewIngester)
	if err != nil {
		return nil, err
	}
	if cfg.Watch.Enabled {
		err = c.Provide(ingest.NewDumpWatcher)
		if err != nil {
			return nil, err
		}
	}
	err = c.Provide(web.NewWeb)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func provideBasics(c *dig.Container, cfg *config.Config, logger *zap.Logger) error {
	err := c.Provide(func() *zap.Logger {
		return logger
	})
	if err != nil {
		return err
	}
	err = c.Provide(func() *config.Config {
		return cfg
	})
	if err != nil {
		return err
	}
	return nil
}

// DataSourceName returns the sqlite connection string for a database file.
func DataSourceName(fileName string) string {
	additionalSqliteParameters := "?_journal_mode=WAL"
	if fileName == ":memory:" {
		// Every connection to :memory: gets its own database unless the cache is shared.
		additionalSqliteParameters += "&cache=shared"
	}
	return "file:" + fileName + additionalSqliteParameters
}

func provideStorage(c *dig.Container) error {
	err := c.Provide(func(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
		dsn := DataSourceName(cfg.SQLite.DatabaseFile)
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("error opening database with dsn=%s: %w", dsn, err)
		}
		logger.Info("opened database", zap.String("fileName", cfg.SQLite.DatabaseFile))
		return db, nil
	})
	if err != nil {
		return err
	}
	return c.Provide(events.SqliteRepository)
}

func providePublisher(c *dig.Container, debug bool) error {
	return c.Provide(func(p events.BatchedRepositoryPublisherParams) events.Publisher {
		publisher := events.BatchedRepositoryPublisher(p)
		if debug {
			return events.DebugEventPublisher(publisher, p.Logger.Named("DebugEventPublisher"))
		}
		return publisher
	})
}
