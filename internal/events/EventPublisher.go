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
	"go.uber.org/zap"
)

type Publisher interface {
	PublishEvent(rec Record)
	// Flush returns once every record published before the call has been handed to the repository.
	Flush()
	// Close flushes anything the publisher has buffered. PublishEvent must not be called after Close.
	Close()
}

type debugEventPublisher struct {
	wrapped Publisher
	logger  *zap.Logger
}

func DebugEventPublisher(wrapped Publisher, logger *zap.Logger) Publisher {
	return &debugEventPublisher{
		wrapped: wrapped,
		logger:  logger,
	}
}

func (ep *debugEventPublisher) PublishEvent(rec Record) {
	ep.logger.Debug("Received event",
		zap.String("kind", string(rec.Event.Kind())),
		zap.String("message", Message(rec.Event)),
		zap.String("source", rec.Source),
		zap.Int64("line", rec.Line))
	if ep.wrapped != nil {
		ep.wrapped.PublishEvent(rec)
	}
}

func (ep *debugEventPublisher) Flush() {
	if ep.wrapped != nil {
		ep.wrapped.Flush()
	}
}

func (ep *debugEventPublisher) Close() {
	if ep.wrapped != nil {
		ep.wrapped.Close()
	}
}

type nopEventPublisher struct {
}

func NopEventPublisher() Publisher {
	return &nopEventPublisher{}
}

func (ep *nopEventPublisher) PublishEvent(_ Record) {}

func (ep *nopEventPublisher) Flush() {}

func (ep *nopEventPublisher) Close() {}
