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

package knn

import (
	"context"
	"slices"
	"time"

	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/common/sparse"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// userVector is the rating vector of a user centered on the user's mean.
type userVector struct {
	ratings  sparse.Vector[int64]
	centered sparse.Vector[int64]
	mean     float64
	norm     float64
}

func newUserVector(ratings []data.Rating) *userVector {
	v := &userVector{ratings: make(sparse.Vector[int64], len(ratings))}
	for _, r := range ratings {
		v.ratings[r.ItemId] = r.Value
	}
	v.mean = sparse.Mean(v.ratings)
	v.centered = sparse.Center(v.ratings, v.mean)
	v.norm = sparse.Norm(v.centered)
	return v
}

type candidate struct {
	Neighbor
	vector *userVector
}

// UserUserScorer computes neighbors of the target user on every request. Unrated items
// are implicit zeros of the centered vectors, so cosine similarity over the union of
// rated items equals cosine similarity over all items.
type UserUserScorer struct {
	source           data.RatingSource
	neighborhoodSize int
	minNeighbors     int
	cache            *ttlcache.Cache[int64, *userVector]
}

type UserUserOption func(*UserUserScorer)

func WithNeighborhoodSize(n int) UserUserOption {
	return func(s *UserUserScorer) {
		s.neighborhoodSize = n
	}
}

func WithMinNeighbors(n int) UserUserOption {
	return func(s *UserUserScorer) {
		s.minNeighbors = n
	}
}

// WithCache keeps user vectors across requests for ttl. Call Invalidate after ratings
// change. A non-positive ttl keeps vectors until invalidated.
func WithCache(ttl time.Duration) UserUserOption {
	return func(s *UserUserScorer) {
		if ttl <= 0 {
			ttl = ttlcache.NoTTL
		}
		s.cache = ttlcache.New[int64, *userVector](
			ttlcache.WithTTL[int64, *userVector](ttl),
			ttlcache.WithDisableTouchOnHit[int64, *userVector](),
		)
	}
}

func NewUserUserScorer(source data.RatingSource, opts ...UserUserOption) (*UserUserScorer, error) {
	s := &UserUserScorer{
		source:           source,
		neighborhoodSize: DefaultUserNeighborhoodSize,
		minNeighbors:     DefaultMinNeighbors,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.neighborhoodSize <= 0 {
		return nil, errors.NotValidf("neighborhood size %d", s.neighborhoodSize)
	}
	if s.minNeighbors <= 0 || s.minNeighbors > s.neighborhoodSize {
		return nil, errors.NotValidf("minimum neighbors %d", s.minNeighbors)
	}
	return s, nil
}

// Invalidate drops cached user vectors.
func (s *UserUserScorer) Invalidate() {
	if s.cache != nil {
		s.cache.DeleteAll()
	}
}

func (s *UserUserScorer) userVector(ctx context.Context, userId int64) (*userVector, error) {
	if s.cache != nil {
		if item := s.cache.Get(userId); item != nil {
			return item.Value(), nil
		}
	}
	ratings, err := s.source.GetUserRatings(ctx, userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	v := newUserVector(ratings)
	if s.cache != nil {
		s.cache.Set(userId, v, ttlcache.DefaultTTL)
	}
	return v, nil
}

// Score each item as targetMean + Σ sim·(r_vi − mean_v) / Σ sim over the most similar
// users v that rated the item with non-negative similarity. Items with fewer than the
// minimum number of such neighbors are omitted.
func (s *UserUserScorer) Score(ctx context.Context, userId int64, items []int64) (map[int64]float64, error) {
	scores := make(map[int64]float64)
	target, err := s.userVector(ctx, userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(target.ratings) == 0 {
		return scores, nil
	}
	if target.norm == 0 {
		// similarity to a user without variance is undefined
		log.Logger().Debug("user has zero-norm rating vector", zap.Int64("user_id", userId))
		return scores, nil
	}
	userIds, err := s.source.GetUserIds(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	candidates := make([]candidate, 0, len(userIds))
	for _, otherId := range userIds {
		if otherId == userId {
			continue
		}
		other, err := s.userVector(ctx, otherId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		sim, ok := sparse.CosineWithNorms(target.centered, other.centered, target.norm, other.norm)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{Neighbor: Neighbor{Id: otherId, Similarity: sim}, vector: other})
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		return compareNeighbors(a.Neighbor, b.Neighbor)
	})
	for _, itemId := range items {
		var numerator, denominator float64
		var count int
		for _, c := range candidates {
			if c.Similarity < 0 {
				// the rest are negative too
				break
			}
			rating, rated := c.vector.ratings[itemId]
			if !rated {
				continue
			}
			numerator += c.Similarity * (rating - c.vector.mean)
			denominator += c.Similarity
			if count++; count == s.neighborhoodSize {
				break
			}
		}
		if count < s.minNeighbors || denominator == 0 {
			continue
		}
		scores[itemId] = target.mean + numerator/denominator
	}
	return scores, nil
}
