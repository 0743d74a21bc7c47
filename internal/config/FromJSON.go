// Copyright 2020 Jack Bister
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

package config

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
)

type jsonCorrelationConfig struct {
	TxgTolerance *uint64 `json:"txgTolerance"`
}

type jsonPublisherConfig struct {
	MaxBufferedEvents *int `json:"maxBufferedEvents"`
	FlushInterval     string `json:"flushInterval"`
}

type jsonSqliteConfig struct {
	FileName  string `json:"fileName"`
	TrueBatch *bool  `json:"trueBatch"`
}

type jsonWatchConfig struct {
	Enabled      *bool  `json:"enabled"`
	Glob         string `json:"glob"`
	ReadInterval string `json:"readInterval"`
	SettleTime   string `json:"settleTime"`
}

type jsonWebConfig struct {
	Enabled *bool  `json:"enabled"`
	Address string `json:"address"`
}

type jsonConfig struct {
	Timezone   string `json:"timezone"`
	ProbeLines *int   `json:"probeLines"`

	Correlation *jsonCorrelationConfig `json:"correlation"`
	Publisher   *jsonPublisherConfig   `json:"publisher"`
	Sqlite      *jsonSqliteConfig      `json:"sqlite"`
	Watch       *jsonWatchConfig       `json:"watch"`
	Web         *jsonWebConfig         `json:"web"`
}

const defaultProbeLines = 10
const defaultTxgTolerance = 8
const defaultMaxBufferedEvents = 5000
const defaultFlushInterval = 1 * time.Second
const defaultDatabaseFile = "zdbtimeline.db"
const defaultReadInterval = 1 * time.Second
const defaultSettleTime = 2 * time.Second
const defaultWebAddress = ":8080"

// Default returns the configuration that is used when there is no configuration file.
func Default() *Config {
	return &Config{
		Timezone:   time.UTC,
		ProbeLines: defaultProbeLines,

		Correlation: &CorrelationConfig{
			TxgTolerance: defaultTxgTolerance,
		},
		Publisher: &PublisherConfig{
			MaxBufferedEvents: defaultMaxBufferedEvents,
			FlushInterval:     defaultFlushInterval,
		},
		SQLite: &SqliteConfig{
			DatabaseFile: defaultDatabaseFile,
			TrueBatch:    true,
		},
		Watch: &WatchConfig{
			Enabled:      false,
			ReadInterval: defaultReadInterval,
			SettleTime:   defaultSettleTime,
		},
		Web: &WebConfig{
			Enabled: false,
			Address: defaultWebAddress,
		},
	}
}

func FromJSON(r io.Reader, logger *zap.Logger) (*Config, error) {
	var cfg jsonConfig
	decoder := json.NewDecoder(r)
	err := decoder.Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("error decoding config JSON: %w", err)
	}
	ret := Default()

	if cfg.Timezone == "" {
		logger.Info("Using default timezone", zap.String("defaultTimezone", "UTC"))
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("error reading config at timezone: error loading location='%s': %w", cfg.Timezone, err)
		}
		ret.Timezone = loc
	}

	if cfg.ProbeLines == nil {
		logger.Info("Using default probeLines", zap.Int("defaultProbeLines", defaultProbeLines))
	} else if *cfg.ProbeLines < 1 {
		return nil, fmt.Errorf("error reading config at probeLines: probeLines must be at least 1 but was %v", *cfg.ProbeLines)
	} else {
		ret.ProbeLines = *cfg.ProbeLines
	}

	if cfg.Correlation == nil || cfg.Correlation.TxgTolerance == nil {
		logger.Info("Using default correlation.txgTolerance", zap.Uint64("defaultTxgTolerance", defaultTxgTolerance))
	} else {
		ret.Correlation.TxgTolerance = *cfg.Correlation.TxgTolerance
	}

	if cfg.Publisher == nil {
		logger.Info("Using default publisher configuration")
	} else {
		if cfg.Publisher.MaxBufferedEvents != nil {
			if *cfg.Publisher.MaxBufferedEvents < 1 {
				return nil, fmt.Errorf("error reading config at publisher.maxBufferedEvents: must be at least 1 but was %v", *cfg.Publisher.MaxBufferedEvents)
			}
			ret.Publisher.MaxBufferedEvents = *cfg.Publisher.MaxBufferedEvents
		}
		if cfg.Publisher.FlushInterval != "" {
			fi, err := time.ParseDuration(cfg.Publisher.FlushInterval)
			if err != nil {
				return nil, fmt.Errorf("error reading config at publisher.flushInterval: error parsing duration: %w", err)
			}
			if fi <= 0 {
				return nil, fmt.Errorf("error reading config at publisher.flushInterval: must be positive but was %v", fi)
			}
			ret.Publisher.FlushInterval = fi
		}
	}

	if cfg.Sqlite == nil {
		logger.Info("Using default sqlite configuration")
	} else {
		if cfg.Sqlite.FileName == "" {
			logger.Info("Using default sqlite filename", zap.String("defaultFileName", defaultDatabaseFile))
		} else {
			ret.SQLite.DatabaseFile = cfg.Sqlite.FileName
		}
		if cfg.Sqlite.TrueBatch != nil {
			ret.SQLite.TrueBatch = *cfg.Sqlite.TrueBatch
		}
	}

	if cfg.Watch == nil {
		logger.Info("No watch configuration, dump directory watching is disabled")
	} else {
		if cfg.Watch.Enabled == nil {
			logger.Info("watch.enabled not specified, defaulting to true since a watch configuration exists")
			ret.Watch.Enabled = true
		} else {
			ret.Watch.Enabled = *cfg.Watch.Enabled
		}
		ret.Watch.Glob = cfg.Watch.Glob
		if ret.Watch.Enabled && ret.Watch.Glob == "" {
			return nil, fmt.Errorf("error reading config at watch.glob: glob must be set when watching is enabled")
		}
		if cfg.Watch.ReadInterval != "" {
			ri, err := time.ParseDuration(cfg.Watch.ReadInterval)
			if err != nil {
				return nil, fmt.Errorf("error reading config at watch.readInterval: error parsing duration: %w", err)
			}
			if ri <= 0 {
				return nil, fmt.Errorf("error reading config at watch.readInterval: must be positive but was %v", ri)
			}
			ret.Watch.ReadInterval = ri
		}
		if cfg.Watch.SettleTime != "" {
			st, err := time.ParseDuration(cfg.Watch.SettleTime)
			if err != nil {
				return nil, fmt.Errorf("error reading config at watch.settleTime: error parsing duration: %w", err)
			}
			if st < 0 {
				return nil, fmt.Errorf("error reading config at watch.settleTime: must not be negative but was %v", st)
			}
			ret.Watch.SettleTime = st
		}
	}

	if cfg.Web == nil {
		logger.Info("No web configuration, web API is disabled")
	} else {
		if cfg.Web.Enabled == nil {
			logger.Info("web.enabled not specified, defaulting to true since a web configuration exists")
			ret.Web.Enabled = true
		} else {
			ret.Web.Enabled = *cfg.Web.Enabled
		}
		if cfg.Web.Address == "" {
			logger.Info("Using default web address", zap.String("defaultWebAddress", defaultWebAddress))
		} else {
			ret.Web.Address = cfg.Web.Address
		}
	}

	return ret, nil
}
