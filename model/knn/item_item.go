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

// Package knn implements neighborhood-based collaborative filtering: an item-item model
// with its scorers and an online user-user scorer.
package knn

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"

	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/common/sparse"
	"github.com/gorse-io/scorer/model"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	batchSize = 1024

	DefaultItemNeighborhoodSize = 20
	DefaultUserNeighborhoodSize = 30
	DefaultMinNeighbors         = 2
)

// Neighbor is a similar item or user.
type Neighbor struct {
	Id         int64
	Similarity float64
}

// compareNeighbors orders by similarity descending, then by id ascending.
func compareNeighbors(a, b Neighbor) int {
	if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
		return c
	}
	return cmp.Compare(a.Id, b.Id)
}

// ItemItemModel holds item means and item neighborhoods. An item is never its own
// neighbor and every similarity is in (0, 1]. The model is immutable once built.
type ItemItemModel struct {
	means     map[int64]float64
	neighbors map[int64][]Neighbor
}

// BuildItemItem computes mean-centered rating vectors of items and keeps every pair of
// distinct items with positive cosine similarity.
func BuildItemItem(ctx context.Context, source data.RatingSource) (*ItemItemModel, error) {
	defer model.ObserveBuild("item-item", time.Now())
	// collect rating vectors
	vectors := make(map[int64]sparse.Vector[int64])
	err := data.ForEachRating(ctx, source, batchSize, func(r data.Rating) error {
		vector, ok := vectors[r.ItemId]
		if !ok {
			vector = make(sparse.Vector[int64])
			vectors[r.ItemId] = vector
		}
		vector[r.UserId] = r.Value
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	items := lo.Keys(vectors)
	slices.Sort(items)
	// center and precompute norms
	m := &ItemItemModel{
		means:     make(map[int64]float64, len(items)),
		neighbors: make(map[int64][]Neighbor, len(items)),
	}
	centered := make([]sparse.Vector[int64], len(items))
	norms := make([]float64, len(items))
	for i, itemId := range items {
		mean := sparse.Mean(vectors[itemId])
		m.means[itemId] = mean
		centered[i] = sparse.Center(vectors[itemId], mean)
		norms[i] = sparse.Norm(centered[i])
	}
	// all pairs, each similarity computed once and stored on both sides
	for i := range items {
		if err = ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		for j := i + 1; j < len(items); j++ {
			sim, ok := sparse.CosineWithNorms(centered[i], centered[j], norms[i], norms[j])
			if !ok || sim <= 0 {
				continue
			}
			sim = math.Min(sim, 1)
			m.neighbors[items[i]] = append(m.neighbors[items[i]], Neighbor{Id: items[j], Similarity: sim})
			m.neighbors[items[j]] = append(m.neighbors[items[j]], Neighbor{Id: items[i], Similarity: sim})
		}
	}
	var nPairs int
	for _, neighbors := range m.neighbors {
		slices.SortFunc(neighbors, compareNeighbors)
		nPairs += len(neighbors)
	}
	log.Logger().Info("build item-item model",
		zap.Int("n_items", len(items)),
		zap.Int("n_neighbors", nPairs))
	return m, nil
}

// ItemMean returns the mean rating of an item.
func (m *ItemItemModel) ItemMean(itemId int64) (mean float64, ok bool) {
	mean, ok = m.means[itemId]
	return
}

// Neighbors returns neighbors of an item ordered by similarity descending, ties by id
// ascending. The slice must not be modified.
func (m *ItemItemModel) Neighbors(itemId int64) []Neighbor {
	return m.neighbors[itemId]
}

// Similarity between two items, zero if they are not neighbors.
func (m *ItemItemModel) Similarity(i, j int64) float64 {
	for _, neighbor := range m.neighbors[i] {
		if neighbor.Id == j {
			return neighbor.Similarity
		}
	}
	return 0
}

// ItemItemScorer predicts a rating from the user's own ratings on the most similar items.
type ItemItemScorer struct {
	model            *ItemItemModel
	source           data.RatingSource
	neighborhoodSize int
}

func NewItemItemScorer(m *ItemItemModel, source data.RatingSource, neighborhoodSize int) (*ItemItemScorer, error) {
	if neighborhoodSize <= 0 {
		return nil, errors.NotValidf("neighborhood size %d", neighborhoodSize)
	}
	return &ItemItemScorer{model: m, source: source, neighborhoodSize: neighborhoodSize}, nil
}

// Score each item as itemMean + Σ sim·(r_uj − mean_j) / Σ sim over the top neighbors j
// of the item that the user rated. Items without such neighbors are omitted.
func (s *ItemItemScorer) Score(ctx context.Context, userId int64, items []int64) (map[int64]float64, error) {
	ratings, err := s.source.GetUserRatings(ctx, userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scores := make(map[int64]float64)
	if len(ratings) == 0 {
		return scores, nil
	}
	adjusted := make(map[int64]float64, len(ratings))
	for _, r := range ratings {
		if mean, ok := s.model.means[r.ItemId]; ok {
			adjusted[r.ItemId] = r.Value - mean
		}
	}
	for _, itemId := range items {
		mean, ok := s.model.means[itemId]
		if !ok {
			continue
		}
		var numerator, denominator float64
		var count int
		for _, neighbor := range s.model.neighbors[itemId] {
			if neighbor.Id == itemId {
				continue
			}
			if rating, rated := adjusted[neighbor.Id]; rated {
				numerator += neighbor.Similarity * rating
				denominator += neighbor.Similarity
				if count++; count == s.neighborhoodSize {
					break
				}
			}
		}
		if denominator == 0 {
			continue
		}
		scores[itemId] = mean + numerator/denominator
	}
	return scores, nil
}

// ItemBasedItemScorer scores items by relatedness to a basket of reference items.
type ItemBasedItemScorer struct {
	model *ItemItemModel
}

func NewItemBasedItemScorer(m *ItemItemModel) *ItemBasedItemScorer {
	return &ItemBasedItemScorer{model: m}
}

// ScoreRelated sums the similarities between each item and the basket. Every item gets
// a score, zero when it has no neighbor in the basket.
func (s *ItemBasedItemScorer) ScoreRelated(basket, items []int64) map[int64]float64 {
	inBasket := make(map[int64]struct{}, len(basket))
	for _, itemId := range basket {
		inBasket[itemId] = struct{}{}
	}
	scores := make(map[int64]float64, len(items))
	for _, itemId := range items {
		var sum float64
		for _, neighbor := range s.model.neighbors[itemId] {
			if _, ok := inBasket[neighbor.Id]; ok {
				sum += neighbor.Similarity
			}
		}
		scores[itemId] = sum
	}
	return scores
}
