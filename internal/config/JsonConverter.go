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

package config

import (
	"encoding/json"
	"fmt"
	"io"
)

// ToJSON writes cfg in the same format FromJSON reads, with every value filled in.
func ToJSON(cfg *Config, w io.Writer) error {
	probeLines := cfg.ProbeLines
	txgTolerance := cfg.Correlation.TxgTolerance
	maxBuffered := cfg.Publisher.MaxBufferedEvents
	trueBatch := cfg.SQLite.TrueBatch
	watchEnabled := cfg.Watch.Enabled
	webEnabled := cfg.Web.Enabled
	jc := jsonConfig{
		Timezone:   cfg.Timezone.String(),
		ProbeLines: &probeLines,
		Correlation: &jsonCorrelationConfig{
			TxgTolerance: &txgTolerance,
		},
		Publisher: &jsonPublisherConfig{
			MaxBufferedEvents: &maxBuffered,
			FlushInterval:     cfg.Publisher.FlushInterval.String(),
		},
		Sqlite: &jsonSqliteConfig{
			FileName:  cfg.SQLite.DatabaseFile,
			TrueBatch: &trueBatch,
		},
		Watch: &jsonWatchConfig{
			Enabled:      &watchEnabled,
			Glob:         cfg.Watch.Glob,
			ReadInterval: cfg.Watch.ReadInterval.String(),
			SettleTime:   cfg.Watch.SettleTime.String(),
		},
		Web: &jsonWebConfig{
			Enabled: &webEnabled,
			Address: cfg.Web.Address,
		},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(jc)
	if err != nil {
		return fmt.Errorf("error encoding config JSON: %w", err)
	}
	return nil
}
