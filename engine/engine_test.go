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

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/gorse-io/scorer/config"
	"github.com/gorse-io/scorer/dataset"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func newTestEngine(t *testing.T) *Engine {
	var ratings []data.Rating
	var tags []data.Tag
	for userId := int64(1); userId <= 10; userId++ {
		for itemId := int64(1); itemId <= 8; itemId++ {
			if (userId+itemId)%4 != 0 {
				ratings = append(ratings, data.Rating{
					UserId: userId,
					ItemId: itemId,
					Value:  float64((userId+2*itemId)%5 + 1),
				})
			}
		}
	}
	for itemId := int64(1); itemId <= 8; itemId++ {
		tags = append(tags, data.Tag{ItemId: itemId, Tag: []string{"a", "b", "c"}[itemId%3]})
		tags = append(tags, data.Tag{ItemId: itemId, Tag: []string{"x", "y"}[itemId%2]})
	}
	conf := config.GetDefaultConfig()
	conf.Hybrid.Epochs = 3
	conf.Hybrid.Jobs = 2
	conf.UserUser.CacheTTL = time.Minute
	e, err := NewEngine(context.Background(), conf, dataset.NewDataset(time.Now(), ratings, tags))
	assert.NoError(t, err)
	return e
}

func TestScorers(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	for _, name := range Scorers {
		scorer, err := e.Scorer(ctx, name)
		assert.NoError(t, err, name)
		scores, err := scorer.Score(ctx, 1, []int64{1, 2, 3, 4, 5, 6, 7, 8})
		assert.NoError(t, err, name)
		assert.NotEmpty(t, scores, name)
		for itemId := range scores {
			assert.GreaterOrEqual(t, itemId, int64(1))
			assert.LessOrEqual(t, itemId, int64(8))
		}
		// scorers are built once
		again, err := e.Scorer(ctx, name)
		assert.NoError(t, err)
		assert.Same(t, scorer, again)
	}
	_, err := e.Scorer(ctx, "unknown")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestLogisticRange(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scorer, err := e.Scorer(ctx, Logistic)
	assert.NoError(t, err)
	scores, err := scorer.Score(ctx, 2, []int64{1, 2, 3, 100})
	assert.NoError(t, err)
	assert.Len(t, scores, 4)
	for _, score := range scores {
		assert.Greater(t, score, 0.0)
		assert.Less(t, score, 1.0)
	}
}

func TestAssociation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	for _, name := range []string{Lift, Basic} {
		m, err := e.Association(ctx, name)
		assert.NoError(t, err)
		scores := m.ScoreRelated(1, []int64{1, 2, 3})
		assert.Len(t, scores, 2)
	}
	_, err := e.Association(ctx, "unknown")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestScoreUsers(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scorer, err := e.Scorer(ctx, SVD)
	assert.NoError(t, err)
	users := []int64{1, 2, 3, 4, 100}
	results, err := ScoreUsers(ctx, scorer, users, []int64{1, 2, 3}, 3)
	assert.NoError(t, err)
	assert.Len(t, results, 5)
	for i, userId := range users[:4] {
		expected, err := scorer.Score(ctx, userId, []int64{1, 2, 3})
		assert.NoError(t, err)
		assert.Equal(t, expected, results[i])
	}
	assert.Empty(t, results[4])
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	before, err := e.Scorer(ctx, ItemMean)
	assert.NoError(t, err)

	err = e.Reload(ctx, dataset.NewDataset(time.Now(), []data.Rating{
		{UserId: 1, ItemId: 1, Value: 1},
		{UserId: 2, ItemId: 1, Value: 3},
	}, nil))
	assert.NoError(t, err)
	after, err := e.Scorer(ctx, ItemMean)
	assert.NoError(t, err)
	assert.NotSame(t, before, after)
	scores, err := after.Score(ctx, 1, []int64{1, 2})
	assert.NoError(t, err)
	assert.Equal(t, map[int64]float64{1: 2}, scores)

	// scorers handed out before keep the old snapshot
	scores, err = before.Score(ctx, 1, []int64{1, 2})
	assert.NoError(t, err)
	assert.Len(t, scores, 2)
}

func TestSplitSnapshot(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	s := e.current.Load()
	base, tune, err := e.splitSnapshot(ctx, s)
	assert.NoError(t, err)
	assert.NotEmpty(t, tune)
	assert.Equal(t, s.dataset.CountRatings(), base.dataset.CountRatings()+len(tune))
	// held out ratings are unknown to base scorers
	for _, r := range tune {
		ratings, err := base.dataset.GetUserRatings(ctx, r.UserId)
		assert.NoError(t, err)
		for _, other := range ratings {
			assert.NotEqual(t, r.ItemId, other.ItemId)
		}
	}
	// base scorers are not shared with the full snapshot
	full, err := e.Scorer(ctx, SVD)
	assert.NoError(t, err)
	_, err = e.Scorer(ctx, Logistic)
	assert.NoError(t, err)
	again, err := e.Scorer(ctx, SVD)
	assert.NoError(t, err)
	assert.Same(t, full, again)
}

func TestRelated(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	related, err := e.Related(ctx, ItemItem)
	assert.NoError(t, err)
	scores := related(1, []int64{2, 3, 100})
	assert.Len(t, scores, 3)
	assert.Zero(t, scores[100])
	// one reference item sums a single similarity
	m, err := e.current.Load().itemItemModel(ctx)
	assert.NoError(t, err)
	for _, itemId := range []int64{2, 3} {
		assert.InDelta(t, m.Similarity(itemId, 1), scores[itemId], 1e-12)
	}

	related, err = e.Related(ctx, Lift)
	assert.NoError(t, err)
	lift, err := e.Association(ctx, Lift)
	assert.NoError(t, err)
	assert.Equal(t, lift.ScoreRelated(1, []int64{2, 3}), related(1, []int64{2, 3}))

	_, err = e.Related(ctx, "unknown")
	assert.True(t, errors.Is(err, errors.NotValid))
}
