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
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/common/parallel"
	"github.com/gorse-io/scorer/model"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

const (
	DefaultLearningRate = 5e-5
	DefaultEpochs       = 100
)

// Popularity counts ratings of items.
type Popularity interface {
	ItemRatingCount(itemId int64) int
}

type TrainConfig struct {
	LearningRate float64
	Epochs       int
	Seed         int64
	// Jobs is the number of workers used to score the training split.
	Jobs int
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LearningRate: DefaultLearningRate,
		Epochs:       DefaultEpochs,
		Jobs:         1,
	}
}

// LogisticModel combines features [bias, log10(popularity), s_1 - bias, ..., s_n - bias]
// of base scorers.
type LogisticModel struct {
	Intercept    float64
	Coefficients []float64
}

// Sigmoid maps z into the open interval (0, 1). Results that would round to 0 or 1 are
// clamped to the nearest representable value inside.
func Sigmoid(z float64) float64 {
	var s float64
	if z >= 0 {
		s = 1 / (1 + math.Exp(-z))
	} else {
		e := math.Exp(z)
		s = e / (1 + e)
	}
	return min(max(s, math.SmallestNonzeroFloat64), math.Nextafter(1, 0))
}

// Evaluate returns the linear predictor z of a feature vector.
func (m *LogisticModel) Evaluate(features []float64) float64 {
	return m.Intercept + floats.Dot(m.Coefficients, features)
}

func (m *LogisticModel) clone() *LogisticModel {
	return &LogisticModel{Intercept: m.Intercept, Coefficients: slices.Clone(m.Coefficients)}
}

func logPopularity(count int) float64 {
	// unknown items are treated as rated once
	return math.Log10(float64(max(count, 1)))
}

// TrainLogistic fits a logistic combiner of base scorers by stochastic gradient descent
// over a training split. Base scorers are evaluated once per training rating before the
// first epoch. The rating value is used as the label as is, so the gradient step is
// lr * r * σ(-r * z). Each epoch evaluates z against the model at the start of the epoch.
func TrainLogistic(
	ctx context.Context,
	cfg TrainConfig,
	split []data.Rating,
	bias model.BiasModel,
	popularity Popularity,
	scorers []model.Scorer,
) (*LogisticModel, error) {
	defer model.ObserveBuild("logistic", time.Now())
	if len(scorers) == 0 {
		return nil, errors.NotValidf("empty list of scorers")
	}
	if cfg.LearningRate <= 0 {
		return nil, errors.NotValidf("learning rate %v", cfg.LearningRate)
	}
	if cfg.Epochs < 0 {
		return nil, errors.NotValidf("epochs %v", cfg.Epochs)
	}
	nScorers := len(scorers)
	cache, present, err := scoreSplit(ctx, cfg.Jobs, split, scorers)
	if err != nil {
		return nil, errors.Trace(err)
	}

	current := &LogisticModel{Coefficients: make([]float64, 2+nScorers)}
	next := current.clone()
	features := make([]float64, 2+nScorers)
	order := lo.Range(len(split))
	rng := rand.New(rand.NewSource(cfg.Seed))
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err = ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for _, example := range order {
			r := split[example]
			b := model.Baseline(bias, r.UserId, r.ItemId)
			features[0] = b
			features[1] = logPopularity(popularity.ItemRatingCount(r.ItemId))
			for k := 0; k < nScorers; k++ {
				if present.Test(uint(example*nScorers + k)) {
					features[2+k] = cache[example*nScorers+k] - b
				} else {
					features[2+k] = 0
				}
			}
			step := cfg.LearningRate * r.Value * Sigmoid(-r.Value*current.Evaluate(features))
			next.Intercept += step
			floats.AddScaled(next.Coefficients, step, features)
		}
		current = next.clone()
		log.Logger().Debug("fit logistic model",
			zap.Int("epoch", epoch+1),
			zap.Float64("intercept", current.Intercept),
			zap.Float64s("coefficients", current.Coefficients))
	}
	log.Logger().Info("fit logistic model complete",
		zap.Int("n_ratings", len(split)),
		zap.Int("n_scorers", nScorers),
		zap.Int("n_epochs", cfg.Epochs))
	return current, nil
}

// scoreSplit evaluates every base scorer on every training rating. The score of rating e
// by scorer k is cache[e*n+k] and exists if bit e*n+k is set. Ratings are grouped by
// user so that each scorer is called once per user.
func scoreSplit(ctx context.Context, jobs int, split []data.Rating, scorers []model.Scorer) ([]float64, *bitset.BitSet, error) {
	nScorers := len(scorers)
	jobs = max(jobs, 1)
	groups := make(map[int64][]int)
	for i, r := range split {
		groups[r.UserId] = append(groups[r.UserId], i)
	}
	users := lo.Keys(groups)
	slices.Sort(users)

	cache := make([]float64, len(split)*nScorers)
	// a bit set per worker since neighboring bits share words
	presents := make([]*bitset.BitSet, jobs)
	for i := range presents {
		presents[i] = bitset.New(uint(len(cache)))
	}
	err := parallel.Parallel(ctx, len(users), jobs, func(workerId, jobId int) error {
		examples := groups[users[jobId]]
		items := lo.Map(examples, func(e int, _ int) int64 {
			return split[e].ItemId
		})
		for k, scorer := range scorers {
			scores, err := scorer.Score(ctx, users[jobId], items)
			if err != nil {
				return errors.Trace(err)
			}
			for _, e := range examples {
				if score, ok := scores[split[e].ItemId]; ok {
					cache[e*nScorers+k] = score
					presents[workerId].Set(uint(e*nScorers + k))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	present := presents[0]
	for _, other := range presents[1:] {
		present.InPlaceUnion(other)
	}
	log.Logger().Info("score training split",
		zap.Int("n_users", len(users)),
		zap.Int("n_scores", len(cache)),
		zap.Uint("n_present", present.Count()))
	return cache, present, nil
}

// LogisticScorer returns preference probabilities in (0, 1) rather than ratings.
type LogisticScorer struct {
	model      *LogisticModel
	bias       model.BiasModel
	popularity Popularity
	scorers    []model.Scorer
}

func NewLogisticScorer(m *LogisticModel, bias model.BiasModel, popularity Popularity, scorers []model.Scorer) (*LogisticScorer, error) {
	if len(m.Coefficients) != 2+len(scorers) {
		return nil, errors.NotValidf("%d coefficients for %d scorers", len(m.Coefficients), len(scorers))
	}
	return &LogisticScorer{model: m, bias: bias, popularity: popularity, scorers: scorers}, nil
}

func (s *LogisticScorer) Score(ctx context.Context, userId int64, items []int64) (map[int64]float64, error) {
	results := make([]map[int64]float64, len(s.scorers))
	for k, scorer := range s.scorers {
		var err error
		if results[k], err = scorer.Score(ctx, userId, items); err != nil {
			return nil, errors.Trace(err)
		}
	}
	scores := make(map[int64]float64, len(items))
	features := make([]float64, 2+len(s.scorers))
	for _, itemId := range items {
		b := model.Baseline(s.bias, userId, itemId)
		features[0] = b
		features[1] = logPopularity(s.popularity.ItemRatingCount(itemId))
		for k := range s.scorers {
			if score, ok := results[k][itemId]; ok {
				features[2+k] = score - b
			} else {
				features[2+k] = 0
			}
		}
		scores[itemId] = Sigmoid(s.model.Evaluate(features))
	}
	return scores, nil
}
