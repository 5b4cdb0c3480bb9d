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

// Package engine builds scorers from configuration over a snapshot of ratings.
package engine

import (
	"context"
	"time"

	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/common/parallel"
	"github.com/gorse-io/scorer/config"
	"github.com/gorse-io/scorer/dataset"
	"github.com/gorse-io/scorer/model"
	"github.com/gorse-io/scorer/model/assoc"
	"github.com/gorse-io/scorer/model/baseline"
	"github.com/gorse-io/scorer/model/content"
	"github.com/gorse-io/scorer/model/hybrid"
	"github.com/gorse-io/scorer/model/knn"
	"github.com/gorse-io/scorer/model/svd"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Scorer names
const (
	ItemItem = "item-item"
	UserUser = "user-user"
	SVD      = "svd"
	ItemMean = "item-mean"
	TFIDF    = "tfidf"
	Bias     = "bias"
	Blend    = "blend"
	Logistic = "logistic"
)

var Scorers = []string{ItemItem, UserUser, SVD, ItemMean, TFIDF, Bias, Blend, Logistic}

// Association rule names
const (
	Lift  = "lift"
	Basic = "basic"
)

// Engine builds scorers lazily and reuses them. It is not safe for concurrent use while
// building, but the scorers it returns are. Reload publishes a new snapshot without
// disturbing scorers handed out before.
type Engine struct {
	config  *config.Config
	current *model.Holder[snapshot]
}

// snapshot is everything built over one dataset.
type snapshot struct {
	dataset  *dataset.Dataset
	bias     *baseline.BiasModel
	summary  *baseline.RatingSummary
	scorers  map[string]model.Scorer
	itemItem *knn.ItemItemModel
}

// itemItemModel is shared by the item-item scorer and related items.
func (s *snapshot) itemItemModel(ctx context.Context) (*knn.ItemItemModel, error) {
	if s.itemItem == nil {
		m, err := knn.BuildItemItem(ctx, s.dataset)
		if err != nil {
			return nil, errors.Trace(err)
		}
		s.itemItem = m
	}
	return s.itemItem, nil
}

func newSnapshot(ctx context.Context, conf *config.Config, ds *dataset.Dataset) (*snapshot, error) {
	bias, err := baseline.BuildBias(ctx, ds, conf.Baseline.Damping)
	if err != nil {
		return nil, errors.Trace(err)
	}
	summary, err := baseline.BuildRatingSummary(ctx, ds)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &snapshot{
		dataset: ds,
		bias:    bias,
		summary: summary,
		scorers: make(map[string]model.Scorer),
	}, nil
}

func NewEngine(ctx context.Context, conf *config.Config, ds *dataset.Dataset) (*Engine, error) {
	s, err := newSnapshot(ctx, conf, ds)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Engine{config: conf, current: model.NewHolder(s)}, nil
}

// Reload replaces the dataset. Scorers are rebuilt on the next request.
func (e *Engine) Reload(ctx context.Context, ds *dataset.Dataset) error {
	s, err := newSnapshot(ctx, e.config, ds)
	if err != nil {
		return errors.Trace(err)
	}
	e.current.Store(s)
	log.Logger().Info("reload dataset",
		zap.Int("n_users", ds.CountUsers()),
		zap.Int("n_items", ds.CountItems()),
		zap.Int("n_ratings", ds.CountRatings()))
	return nil
}

// Scorer returns the scorer of a name. Latency and omitted items are recorded.
func (e *Engine) Scorer(ctx context.Context, name string) (model.Scorer, error) {
	return e.scorer(ctx, e.current.Load(), name)
}

func (e *Engine) scorer(ctx context.Context, s *snapshot, name string) (model.Scorer, error) {
	if scorer, ok := s.scorers[name]; ok {
		return scorer, nil
	}
	start := time.Now()
	scorer, err := e.build(ctx, s, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("build scorer",
		zap.String("name", name),
		zap.Duration("used_time", time.Since(start)))
	s.scorers[name] = model.WithMetrics(name, scorer)
	return s.scorers[name], nil
}

func (e *Engine) build(ctx context.Context, s *snapshot, name string) (model.Scorer, error) {
	switch name {
	case ItemItem:
		m, err := s.itemItemModel(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return knn.NewItemItemScorer(m, s.dataset, e.config.ItemItem.NeighborhoodSize)
	case UserUser:
		opts := []knn.UserUserOption{
			knn.WithNeighborhoodSize(e.config.UserUser.NeighborhoodSize),
			knn.WithMinNeighbors(e.config.UserUser.MinNeighbors),
		}
		if e.config.UserUser.CacheTTL > 0 {
			opts = append(opts, knn.WithCache(e.config.UserUser.CacheTTL))
		}
		return knn.NewUserUserScorer(s.dataset, opts...)
	case SVD:
		m, err := svd.Build(ctx, s.dataset, s.bias, e.config.SVD.FeatureCount)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return svd.NewScorer(m, s.bias), nil
	case ItemMean:
		m, err := baseline.BuildItemMean(ctx, s.dataset, e.config.Baseline.Damping)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return baseline.NewItemMeanScorer(m), nil
	case TFIDF:
		m, err := content.BuildTFIDF(ctx, s.dataset)
		if err != nil {
			return nil, errors.Trace(err)
		}
		var profile content.ProfileBuilder
		if e.config.Content.Profile == "weighted" {
			profile = content.NewWeightedProfile(m)
		} else {
			profile = content.NewThresholdProfile(m, e.config.Content.Threshold)
		}
		return content.NewScorer(m, s.dataset, profile), nil
	case Bias:
		return baseline.NewBiasScorer(s.bias), nil
	case Blend:
		left, err := e.scorer(ctx, s, e.config.Hybrid.BlendLeft)
		if err != nil {
			return nil, errors.Trace(err)
		}
		right, err := e.scorer(ctx, s, e.config.Hybrid.BlendRight)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return hybrid.NewLinearBlend(s.bias, left, right, e.config.Hybrid.BlendWeight)
	case Logistic:
		base, tune, err := e.splitSnapshot(ctx, s)
		if err != nil {
			return nil, errors.Trace(err)
		}
		scorers := make([]model.Scorer, len(e.config.Hybrid.Scorers))
		for i, name := range e.config.Hybrid.Scorers {
			if scorers[i], err = e.scorer(ctx, base, name); err != nil {
				return nil, errors.Trace(err)
			}
		}
		m, err := hybrid.TrainLogistic(ctx, hybrid.TrainConfig{
			LearningRate: e.config.Hybrid.LearningRate,
			Epochs:       e.config.Hybrid.Epochs,
			Seed:         e.config.Hybrid.Seed,
			Jobs:         e.config.Hybrid.Jobs,
		}, tune, base.bias, base.summary, scorers)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return hybrid.NewLogisticScorer(m, base.bias, base.summary, scorers)
	default:
		return nil, errors.NotValidf("scorer %q", name)
	}
}

// splitSnapshot holds out ratings for fitting a combiner. Base scorers are built on the
// returned snapshot, which never contains the held out ratings.
func (e *Engine) splitSnapshot(ctx context.Context, s *snapshot) (*snapshot, []data.Rating, error) {
	train, tune, err := dataset.Split(s.dataset.GetRatings(), e.config.Hybrid.TrainFraction, e.config.Hybrid.Seed)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	base, err := newSnapshot(ctx, e.config, dataset.NewDataset(s.dataset.GetTimestamp(), train, s.dataset.GetTags()))
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	log.Logger().Info("split ratings for combiner",
		zap.Int("n_train", len(train)),
		zap.Int("n_tune", len(tune)))
	return base, tune, nil
}

// Association builds association rules of a name.
func (e *Engine) Association(ctx context.Context, name string) (*assoc.Model, error) {
	ds := e.current.Load().dataset
	switch name {
	case Lift:
		return assoc.BuildLift(ctx, ds)
	case Basic:
		return assoc.BuildBasic(ctx, ds)
	default:
		return nil, errors.NotValidf("association rule %q", name)
	}
}

// RelatedFunc scores items by their relation with a reference item.
type RelatedFunc func(reference int64, items []int64) map[int64]float64

// Related scores items by item-item similarity or by an association rule. Every item is
// scored, zero when it is unrelated.
func (e *Engine) Related(ctx context.Context, rule string) (RelatedFunc, error) {
	if rule != ItemItem {
		m, err := e.Association(ctx, rule)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return m.ScoreRelated, nil
	}
	m, err := e.current.Load().itemItemModel(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scorer := knn.NewItemBasedItemScorer(m)
	return func(reference int64, items []int64) map[int64]float64 {
		return scorer.ScoreRelated([]int64{reference}, items)
	}, nil
}

// ScoreUsers scores the same items for many users on jobs workers. The i-th result
// belongs to the i-th user.
func ScoreUsers(ctx context.Context, scorer model.Scorer, userIds, items []int64, jobs int) ([]map[int64]float64, error) {
	results := make([]map[int64]float64, len(userIds))
	err := parallel.Parallel(ctx, len(userIds), jobs, func(_, jobId int) error {
		scores, err := scorer.Score(ctx, userIds[jobId], items)
		if err != nil {
			return errors.Trace(err)
		}
		results[jobId] = scores
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return results, nil
}
