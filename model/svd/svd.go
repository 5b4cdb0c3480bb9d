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

package svd

import (
	"context"
	"slices"
	"time"

	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/dataset"
	"github.com/gorse-io/scorer/model"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const batchSize = 1024

// epsilon is the machine epsilon of float64.
const epsilon = 0x1p-52

// numericalRank counts singular values above max(m,n) * eps * σ_max. Smaller values are
// rounding noise of a rank deficient matrix.
func numericalRank(values []float64, size int) int {
	if len(values) == 0 {
		return 0
	}
	tolerance := values[0] * float64(size) * epsilon
	rank := 0
	for _, value := range values {
		if value > tolerance {
			rank++
		}
	}
	return rank
}

// Model is a truncated singular value decomposition of the bias residual matrix.
// Users are rows of UserFactor and items are rows of ItemFactor.
type Model struct {
	userIndex  *dataset.Index
	itemIndex  *dataset.Index
	userFactor *mat.Dense
	itemFactor *mat.Dense
	weights    []float64
}

// Build decomposes the matrix of rating residuals r - bias(u,i). Missing entries are
// zero residuals. Only the first featureCount singular triples are kept, or all of
// them if featureCount is 0. featureCount may not exceed the numerical rank.
func Build(ctx context.Context, source data.RatingSource, bias model.BiasModel, featureCount int) (*Model, error) {
	defer model.ObserveBuild("svd", time.Now())
	if featureCount < 0 {
		return nil, errors.NotValidf("feature count %d", featureCount)
	}
	userIds, err := source.GetUserIds(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	itemIds, err := source.GetItemIds(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := &Model{
		userIndex: dataset.NewIndexFromIds(userIds),
		itemIndex: dataset.NewIndexFromIds(itemIds),
	}
	if len(userIds) == 0 || len(itemIds) == 0 {
		if featureCount > 0 {
			return nil, errors.NotValidf("feature count %d of empty matrix", featureCount)
		}
		return m, nil
	}

	// residual matrix
	residuals := mat.NewDense(len(userIds), len(itemIds), nil)
	err = data.ForEachRating(ctx, source, batchSize, func(r data.Rating) error {
		userIndex, ok := m.userIndex.ToIndex(r.UserId)
		if !ok {
			return errors.NotFoundf("user %d", r.UserId)
		}
		itemIndex, ok := m.itemIndex.ToIndex(r.ItemId)
		if !ok {
			return errors.NotFoundf("item %d", r.ItemId)
		}
		residuals.Set(userIndex, itemIndex, r.Value-model.Baseline(bias, r.UserId, r.ItemId))
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	// decompose
	var svd mat.SVD
	if ok := svd.Factorize(residuals, mat.SVDThin); !ok {
		return nil, errors.New("failed to factorize residual matrix")
	}
	values := svd.Values(nil)
	rank := numericalRank(values, max(len(userIds), len(itemIds)))
	if featureCount > rank {
		return nil, errors.NotValidf("feature count %d greater than rank %d", featureCount, rank)
	} else if featureCount == 0 {
		featureCount = rank
	}
	m.weights = slices.Clone(values[:featureCount])
	if featureCount > 0 {
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		// singular values are sorted in descending order
		m.userFactor = mat.DenseCopyOf(u.Slice(0, len(userIds), 0, featureCount))
		m.itemFactor = mat.DenseCopyOf(v.Slice(0, len(itemIds), 0, featureCount))
	}
	log.Logger().Info("build svd model",
		zap.Int("n_users", len(userIds)),
		zap.Int("n_items", len(itemIds)),
		zap.Int("n_features", featureCount))
	return m, nil
}

func (m *Model) UserCount() int {
	return m.userIndex.Len()
}

func (m *Model) ItemCount() int {
	return m.itemIndex.Len()
}

func (m *Model) FeatureCount() int {
	return len(m.weights)
}

// Weights returns singular values in descending order.
func (m *Model) Weights() []float64 {
	return slices.Clone(m.weights)
}

// UserFactor returns the factor row of a user. ok is false for an unknown user.
func (m *Model) UserFactor(userId int64) (factor []float64, ok bool) {
	i, ok := m.userIndex.ToIndex(userId)
	if !ok {
		return nil, false
	} else if m.userFactor == nil {
		// a zero residual matrix has no features
		return []float64{}, true
	}
	return mat.Row(nil, i, m.userFactor), true
}

// ItemFactor returns the factor row of an item. ok is false for an unknown item.
func (m *Model) ItemFactor(itemId int64) (factor []float64, ok bool) {
	i, ok := m.itemIndex.ToIndex(itemId)
	if !ok {
		return nil, false
	} else if m.itemFactor == nil {
		// a zero residual matrix has no features
		return []float64{}, true
	}
	return mat.Row(nil, i, m.itemFactor), true
}

type Scorer struct {
	model *Model
	bias  model.BiasModel
}

func NewScorer(m *Model, bias model.BiasModel) *Scorer {
	return &Scorer{model: m, bias: bias}
}

// Score items as bias(u,i) + p_u · (q_i ⊙ σ). Unknown users get no scores and unknown
// items are skipped.
func (s *Scorer) Score(_ context.Context, userId int64, items []int64) (map[int64]float64, error) {
	scores := make(map[int64]float64)
	userFactor, ok := s.model.UserFactor(userId)
	if !ok {
		return scores, nil
	}
	weighted := make([]float64, s.model.FeatureCount())
	for _, itemId := range items {
		itemFactor, ok := s.model.ItemFactor(itemId)
		if !ok {
			continue
		}
		floats.MulTo(weighted, itemFactor, s.model.weights)
		scores[itemId] = model.Baseline(s.bias, userId, itemId) + floats.Dot(userFactor, weighted)
	}
	return scores, nil
}
