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

package events

import (
	"sync"
	"time"

	"github.com/jackbister/zdbtimeline/internal/config"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

type batchedRepositoryPublisher struct {
	adder   chan Record
	flusher chan chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

type BatchedRepositoryPublisherParams struct {
	dig.In

	Cfg    *config.Config
	Repo   Repository
	Logger *zap.Logger
}

// BatchedRepositoryPublisher buffers records and adds them to the repository when the buffer is full or when the
// flush interval has passed, whichever happens first.
func BatchedRepositoryPublisher(p BatchedRepositoryPublisherParams) Publisher {
	maxBuffered := p.Cfg.Publisher.MaxBufferedEvents
	flushInterval := p.Cfg.Publisher.FlushInterval
	adder := make(chan Record, maxBuffered)
	flusher := make(chan chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		accumulated := make([]Record, 0, maxBuffered)
		flush := func() {
			if len(accumulated) == 0 {
				return
			}
			err := p.Repo.AddBatch(accumulated)
			if err != nil {
				p.Logger.Error("error when adding events",
					zap.Int("numEvents", len(accumulated)),
					zap.Error(err))
			}
			accumulated = accumulated[:0]
		}
		timeout := time.After(flushInterval)
		for {
			select {
			case <-timeout:
				flush()
				timeout = time.After(flushInterval)
			case rec, ok := <-adder:
				if !ok {
					flush()
					return
				}
				accumulated = append(accumulated, rec)
				if len(accumulated) >= maxBuffered {
					flush()
					timeout = time.After(flushInterval)
				}
			case flushed := <-flusher:
				// Records published before the Flush call may still be sitting in the channel.
				closed := false
			drain:
				for {
					select {
					case rec, ok := <-adder:
						if !ok {
							closed = true
							break drain
						}
						accumulated = append(accumulated, rec)
					default:
						break drain
					}
				}
				flush()
				close(flushed)
				if closed {
					return
				}
				timeout = time.After(flushInterval)
			}
		}
	}()

	return &batchedRepositoryPublisher{
		adder:   adder,
		flusher: flusher,
		done:    done,
	}
}

func (ep *batchedRepositoryPublisher) PublishEvent(rec Record) {
	ep.adder <- rec
}

func (ep *batchedRepositoryPublisher) Flush() {
	flushed := make(chan struct{})
	select {
	case ep.flusher <- flushed:
	case <-ep.done:
		return
	}
	select {
	case <-flushed:
	case <-ep.done:
	}
}

func (ep *batchedRepositoryPublisher) Close() {
	ep.closeOnce.Do(func() {
		close(ep.adder)
	})
	<-ep.done
}
