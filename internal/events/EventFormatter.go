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

package events

import (
	"fmt"
	"strconv"
)

// Message returns the long human readable description of an event.
// File attributes such as Path are the latest values from the dump, not the values at the time of the event.
func Message(evt Event) string {
	switch e := evt.(type) {
	case UberblockEvent:
		return fmt.Sprintf("Uberblock: Pool: %s TXG: %d", e.PoolGuid, e.Txg)
	case FileCreateEvent:
		return fmt.Sprintf("Create: Pool: %s TXG: %d Path: %s", e.PoolGuid, e.Txg, e.Path)
	case FileModifyEvent:
		return fmt.Sprintf("Modify: Pool: %s TXG: %d Path: %s", e.PoolGuid, e.Txg, e.Path)
	}
	return ""
}

// ShortMessage is the one line form used by the CLI.
func ShortMessage(evt Event) string {
	ts := "-"
	if t, ok := evt.Time(); ok {
		ts = strconv.FormatInt(t, 10)
	}
	key := evt.Key()
	switch e := evt.(type) {
	case UberblockEvent:
		return fmt.Sprintf("ZFS UB: %s %d %s", key.PoolGuid, key.Txg, ts)
	case FileCreateEvent:
		return fmt.Sprintf("ZFS CR: %s %d %s %s", key.PoolGuid, key.Txg, ts, e.Path)
	case FileModifyEvent:
		return fmt.Sprintf("ZFS MOD: %s %d %s %s", key.PoolGuid, key.Txg, ts, e.Path)
	}
	return ""
}

func SourceLong(evt Event) string {
	switch evt.Kind() {
	case KindUberblock:
		return "ZFS Uberblock"
	case KindFileCreate:
		return "ZFS File Create"
	case KindFileModify:
		return "ZFS File Modify"
	}
	return ""
}

func SourceShort(_ Event) string {
	return "ZFS"
}
