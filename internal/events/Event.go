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

import "fmt"

// Kind identifies which variant of Event a value is. The string values match the data types used by timeline tools.
type Kind string

const (
	KindUberblock  Kind = "fs:zfs:uberblock"
	KindFileCreate Kind = "fs:zfs:file:create"
	KindFileModify Kind = "fs:zfs:file:modify"
)

func ParseKind(s string) (Kind, error) {
	switch s {
	case string(KindUberblock), "uberblock":
		return KindUberblock, nil
	case string(KindFileCreate), "create":
		return KindFileCreate, nil
	case string(KindFileModify), "modify":
		return KindFileModify, nil
	}
	return "", fmt.Errorf("unknown event kind='%s'", s)
}

// TxgKey is the correlation key shared by all events: the pool an event belongs to and the transaction group it
// happened in.
type TxgKey struct {
	PoolGuid string
	Txg      uint64
}

func (k TxgKey) Key() TxgKey {
	return k
}

// Event is one of UberblockEvent, FileCreateEvent or FileModifyEvent.
type Event interface {
	Kind() Kind
	Key() TxgKey
	// Time returns the POSIX timestamp of the event. ok is false if the timestamp is not known yet.
	Time() (ts int64, ok bool)

	isEvent()
}

// UberblockEvent represents a write of an uberblock, which happens once per transaction group on every vdev the
// transaction touched.
type UberblockEvent struct {
	TxgKey
	Timestamp int64
}

func (UberblockEvent) Kind() Kind { return KindUberblock }

func (e UberblockEvent) Time() (int64, bool) { return e.Timestamp, true }

func (UberblockEvent) isEvent() {}

// FileCreateEvent is emitted once per plain file. Txg is the gen txg of the file and Timestamp is its crtime.
type FileCreateEvent struct {
	TxgKey
	Timestamp int64
	Path      string

	Dataset string
	Object  uint64
}

func (FileCreateEvent) Kind() Kind { return KindFileCreate }

func (e FileCreateEvent) Time() (int64, bool) { return e.Timestamp, true }

func (FileCreateEvent) isEvent() {}

// FileModifyEvent is emitted for the top level block pointer of a file and for every later level 0 block pointer.
// Txg is the birth txg of the block pointer.
// Only the top level block pointer carries the mtime of the file. Timestamp is nil for the others and has to be
// found by joining on Txg with uberblock events.
type FileModifyEvent struct {
	TxgKey
	Timestamp *int64
	Path      string

	Dataset string
	Object  uint64
}

func (FileModifyEvent) Kind() Kind { return KindFileModify }

func (e FileModifyEvent) Time() (int64, bool) {
	if e.Timestamp == nil {
		return 0, false
	}
	return *e.Timestamp, true
}

func (FileModifyEvent) isEvent() {}

// Record is an Event together with where it was read from.
type Record struct {
	Id       int64
	Event    Event
	Source   string
	SourceId string
	Line     int64
}
