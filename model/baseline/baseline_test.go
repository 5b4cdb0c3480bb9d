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

package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/gorse-io/scorer/dataset"
	"github.com/gorse-io/scorer/model"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func newTestDataset() *dataset.Dataset {
	return dataset.NewDataset(time.Now(), []data.Rating{
		{UserId: 1, ItemId: 1, Value: 5},
		{UserId: 1, ItemId: 2, Value: 3},
		{UserId: 2, ItemId: 1, Value: 4},
		{UserId: 3, ItemId: 2, Value: 1},
		{UserId: 3, ItemId: 3, Value: 2},
	}, nil)
}

func TestItemMean(t *testing.T) {
	ctx := context.Background()
	m, err := BuildItemMean(ctx, newTestDataset(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 3.0, m.GlobalMean())
	mean, ok := m.ItemMean(1)
	assert.True(t, ok)
	assert.InDelta(t, 4.5, mean, 1e-12)
	_, ok = m.ItemMean(4)
	assert.False(t, ok)

	scores, err := NewItemMeanScorer(m).Score(ctx, 100, []int64{1, 2, 3, 4})
	assert.NoError(t, err)
	assert.Len(t, scores, 3)
	assert.InDelta(t, 2.0, scores[2], 1e-12)
	assert.InDelta(t, 2.0, scores[3], 1e-12)
}

func TestDampedItemMean(t *testing.T) {
	m, err := BuildItemMean(context.Background(), newTestDataset(), 5)
	assert.NoError(t, err)
	mean, _ := m.ItemMean(1)
	assert.InDelta(t, 24.0/7, mean, 1e-12)
	mean, _ = m.ItemMean(2)
	assert.InDelta(t, 19.0/7, mean, 1e-12)
	mean, _ = m.ItemMean(3)
	assert.InDelta(t, 17.0/6, mean, 1e-12)

	_, err = BuildItemMean(context.Background(), newTestDataset(), -1)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestBias(t *testing.T) {
	ctx := context.Background()
	b, err := BuildBias(ctx, newTestDataset(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 3.0, b.Intercept())
	assert.InDelta(t, 1.5, b.ItemBias(1), 1e-12)
	assert.InDelta(t, -1.0, b.ItemBias(2), 1e-12)
	assert.InDelta(t, -1.0, b.ItemBias(3), 1e-12)
	assert.InDelta(t, 0.75, b.UserBias(1), 1e-12)
	assert.InDelta(t, -0.5, b.UserBias(2), 1e-12)
	assert.InDelta(t, -0.5, b.UserBias(3), 1e-12)
	// unknown ids have no offset
	assert.Zero(t, b.UserBias(100))
	assert.Zero(t, b.ItemBias(100))
	assert.InDelta(t, 3+0.75+1.5, model.Baseline(b, 1, 1), 1e-12)

	scores, err := NewBiasScorer(b).Score(ctx, 2, []int64{1, 100})
	assert.NoError(t, err)
	assert.InDelta(t, 3-0.5+1.5, scores[1], 1e-12)
	assert.InDelta(t, 2.5, scores[100], 1e-12)
}

func TestDampedBias(t *testing.T) {
	b, err := BuildBias(context.Background(), newTestDataset(), 1)
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, b.ItemBias(1), 1e-12)
	assert.InDelta(t, -2.0/3, b.ItemBias(2), 1e-12)
	assert.InDelta(t, -0.5, b.ItemBias(3), 1e-12)
	_, err = BuildBias(context.Background(), newTestDataset(), -1)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestBiasEmpty(t *testing.T) {
	b, err := BuildBias(context.Background(), dataset.NewDataset(time.Now(), nil, nil), 5)
	assert.NoError(t, err)
	assert.Zero(t, b.Intercept())
}

func TestRatingSummary(t *testing.T) {
	s, err := BuildRatingSummary(context.Background(), newTestDataset())
	assert.NoError(t, err)
	assert.Equal(t, 3.0, s.GlobalMean())
	assert.Equal(t, 2, s.ItemRatingCount(1))
	assert.Equal(t, 2, s.ItemRatingCount(2))
	assert.Equal(t, 1, s.ItemRatingCount(3))
	assert.Zero(t, s.ItemRatingCount(4))
	assert.InDelta(t, 1.5, s.ItemOffset(1), 1e-12)
	assert.Zero(t, s.ItemOffset(4))

	_, err = BuildRatingSummary(context.Background(), data.NoDatabase{})
	assert.ErrorIs(t, err, data.ErrNoDatabase)
}
