// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package assoc scores items by how often they are rated together with a reference item.
package assoc

import (
	"context"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/common/sparse"
	"github.com/gorse-io/scorer/model"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const batchSize = 1024

// Model maps a reference item x to association strengths of other items y.
type Model struct {
	rules map[int64]sparse.Vector[int64]
}

// Rules returns the association strengths of items relative to a reference item.
func (m *Model) Rules(reference int64) sparse.Vector[int64] {
	return m.rules[reference]
}

// ScoreRelated scores items relative to a reference item. The reference item itself and
// unknown items are omitted.
func (m *Model) ScoreRelated(reference int64, items []int64) map[int64]float64 {
	scores := make(map[int64]float64)
	rules, ok := m.rules[reference]
	if !ok {
		return scores
	}
	for _, itemId := range items {
		if score, ok := rules[itemId]; ok {
			scores[itemId] = score
		}
	}
	return scores
}

type metric func(x, y mapset.Set[int64], nUsers int) float64

// BuildBasic computes P(x ∧ y) / P(x), the share of raters of x who also rated y.
func BuildBasic(ctx context.Context, source data.RatingSource) (*Model, error) {
	defer model.ObserveBuild("assoc-basic", time.Now())
	return build(ctx, source, func(x, y mapset.Set[int64], _ int) float64 {
		return float64(x.Intersect(y).Cardinality()) / float64(x.Cardinality())
	})
}

// BuildLift computes P(x ∧ y) / (P(x) P(y)).
func BuildLift(ctx context.Context, source data.RatingSource) (*Model, error) {
	defer model.ObserveBuild("assoc-lift", time.Now())
	return build(ctx, source, func(x, y mapset.Set[int64], nUsers int) float64 {
		n := float64(nUsers)
		pxy := float64(x.Intersect(y).Cardinality()) / n
		px := float64(x.Cardinality()) / n
		py := float64(y.Cardinality()) / n
		return pxy / (px * py)
	})
}

func build(ctx context.Context, source data.RatingSource, m metric) (*Model, error) {
	raters := make(map[int64]mapset.Set[int64])
	users := mapset.NewThreadUnsafeSet[int64]()
	err := data.ForEachRating(ctx, source, batchSize, func(r data.Rating) error {
		set, ok := raters[r.ItemId]
		if !ok {
			set = mapset.NewThreadUnsafeSet[int64]()
			raters[r.ItemId] = set
		}
		set.Add(r.UserId)
		users.Add(r.UserId)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	items := lo.Keys(raters)
	slices.Sort(items)
	assoc := &Model{rules: make(map[int64]sparse.Vector[int64], len(items))}
	for _, x := range items {
		if err = ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		rules := make(sparse.Vector[int64], len(items)-1)
		for _, y := range items {
			if x != y {
				rules[y] = m(raters[x], raters[y], users.Cardinality())
			}
		}
		assoc.rules[x] = rules
	}
	log.Logger().Info("build association model",
		zap.Int("n_users", users.Cardinality()),
		zap.Int("n_items", len(items)))
	return assoc, nil
}

// Scorer scores items relative to a fixed reference item regardless of the user.
type Scorer struct {
	model     *Model
	reference int64
}

func NewScorer(m *Model, reference int64) *Scorer {
	return &Scorer{model: m, reference: reference}
}

func (s *Scorer) Score(_ context.Context, _ int64, items []int64) (map[int64]float64, error) {
	return s.model.ScoreRelated(s.reference, items), nil
}
