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

package web

import (
	"fmt"
	"sort"

	"github.com/jackbister/zdbtimeline/internal/events"
)

// EnumProvider lists the values a query parameter can take, so that a client can offer them as choices.
type EnumProvider interface {
	Name() string
	Values() ([]string, error)
}

type KindEnumProvider struct {
}

func NewKindEnumProvider() EnumProvider {
	return &KindEnumProvider{}
}

func (k *KindEnumProvider) Name() string {
	return "kinds"
}

func (k *KindEnumProvider) Values() ([]string, error) {
	return []string{string(events.KindUberblock), string(events.KindFileCreate), string(events.KindFileModify)}, nil
}

type PoolEnumProvider struct {
	repo events.Repository
}

func NewPoolEnumProvider(repo events.Repository) EnumProvider {
	return &PoolEnumProvider{
		repo: repo,
	}
}

func (p *PoolEnumProvider) Name() string {
	return "pools"
}

func (p *PoolEnumProvider) Values() ([]string, error) {
	recs, err := p.repo.Filter(events.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to get pools enum values: %w", err)
	}
	return distinct(recs, func(rec events.Record) string {
		return rec.Event.Key().PoolGuid
	}), nil
}

type SourceEnumProvider struct {
	repo events.Repository
}

func NewSourceEnumProvider(repo events.Repository) EnumProvider {
	return &SourceEnumProvider{
		repo: repo,
	}
}

func (s *SourceEnumProvider) Name() string {
	return "sources"
}

func (s *SourceEnumProvider) Values() ([]string, error) {
	recs, err := s.repo.Filter(events.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to get sources enum values: %w", err)
	}
	return distinct(recs, func(rec events.Record) string {
		return rec.Source
	}), nil
}

func distinct(recs []events.Record, f func(events.Record) string) []string {
	seen := map[string]struct{}{}
	res := []string{}
	for _, rec := range recs {
		v := f(rec)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		res = append(res, v)
	}
	sort.Strings(res)
	return res
}
