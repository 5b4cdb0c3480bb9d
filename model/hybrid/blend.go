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

package hybrid

import (
	"context"

	"github.com/gorse-io/scorer/model"
	"github.com/juju/errors"
)

// LinearBlend mixes residuals of two scorers over a bias model:
//
//	score = bias + (1 - w) * (left - bias) + w * (right - bias)
//
// A missing score has zero residual, so every item is scored.
type LinearBlend struct {
	bias   model.BiasModel
	left   model.Scorer
	right  model.Scorer
	weight float64
}

func NewLinearBlend(bias model.BiasModel, left, right model.Scorer, weight float64) (*LinearBlend, error) {
	if weight < 0 || weight > 1 {
		return nil, errors.NotValidf("blend weight %v", weight)
	}
	return &LinearBlend{bias: bias, left: left, right: right, weight: weight}, nil
}

func (s *LinearBlend) Score(ctx context.Context, userId int64, items []int64) (map[int64]float64, error) {
	leftScores, err := s.left.Score(ctx, userId, items)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rightScores, err := s.right.Score(ctx, userId, items)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scores := make(map[int64]float64, len(items))
	for _, itemId := range items {
		b := model.Baseline(s.bias, userId, itemId)
		score := b
		if left, ok := leftScores[itemId]; ok {
			score += (1 - s.weight) * (left - b)
		}
		if right, ok := rightScores[itemId]; ok {
			score += s.weight * (right - b)
		}
		scores[itemId] = score
	}
	return scores, nil
}
