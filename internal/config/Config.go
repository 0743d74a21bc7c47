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

package config

import "time"

type Config struct {
	// Timezone is the time zone of the machine zdb ran on. zdb prints mtime and crtime in local time, so they are
	// interpreted in this time zone when converted to POSIX timestamps.
	// The default is UTC.
	Timezone *time.Location

	// ProbeLines is the number of non-blank lines at the start of a dump that are checked for a known header before
	// the dump is rejected as unsupported.
	// The default is 10.
	ProbeLines int

	Correlation *CorrelationConfig
	Publisher   *PublisherConfig
	SQLite      *SqliteConfig
	Watch       *WatchConfig
	Web         *WebConfig
}

type CorrelationConfig struct {
	// TxgTolerance is how far away (in txgs) the closest uberblock may be for its timestamp to be used for a modify
	// event without a timestamp.
	TxgTolerance uint64
}

type PublisherConfig struct {
	MaxBufferedEvents int
	FlushInterval     time.Duration
}

type SqliteConfig struct {
	DatabaseFile string
	// TrueBatch makes the repository insert a whole batch with one statement instead of one statement per event.
	TrueBatch bool
}

type WatchConfig struct {
	Enabled bool
	// Glob selects the dump files to ingest, for example "/var/dumps/*.zdb".
	Glob string
	// ReadInterval is how often pending files are checked.
	ReadInterval time.Duration
	// SettleTime is how long a file must go without writes before it is ingested. zdb output is usually redirected to
	// a file, so a file that is still growing is not complete.
	SettleTime time.Duration
}

type WebConfig struct {
	Enabled bool
	Address string
}
