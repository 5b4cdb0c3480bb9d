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

// Package baseline builds non-personalized models: item means, a damped bias model and
// per-item rating counts.
package baseline

import (
	"context"
	"time"

	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/model"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const batchSize = 1024

type accumulator struct {
	sum   float64
	count int
}

func (a *accumulator) add(x float64) {
	a.sum += x
	a.count++
}

func (a accumulator) damped(prior, damping float64) float64 {
	return (a.sum + prior*damping) / (float64(a.count) + damping)
}

func (a accumulator) mean() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// ItemMeanModel stores the (damped) mean rating of every rated item.
type ItemMeanModel struct {
	globalMean float64
	means      map[int64]float64
}

// BuildItemMean computes item means. With damping d each mean is shrunk toward the global
// mean: (sum + d*globalMean) / (count + d). Zero damping gives the plain mean.
func BuildItemMean(ctx context.Context, source data.RatingSource, damping float64) (*ItemMeanModel, error) {
	if damping < 0 {
		return nil, errors.NotValidf("damping %v", damping)
	}
	defer model.ObserveBuild("item-mean", time.Now())
	var global accumulator
	items := make(map[int64]*accumulator)
	err := data.ForEachRating(ctx, source, batchSize, func(r data.Rating) error {
		global.add(r.Value)
		acc, ok := items[r.ItemId]
		if !ok {
			acc = new(accumulator)
			items[r.ItemId] = acc
		}
		acc.add(r.Value)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := &ItemMeanModel{
		globalMean: global.mean(),
		means:      make(map[int64]float64, len(items)),
	}
	for itemId, acc := range items {
		m.means[itemId] = acc.damped(m.globalMean, damping)
	}
	log.Logger().Info("build item mean model",
		zap.Int("n_items", len(m.means)),
		zap.Float64("damping", damping))
	return m, nil
}

func (m *ItemMeanModel) GlobalMean() float64 {
	return m.globalMean
}

// ItemMean returns the mean of an item. ok is false for items without ratings.
func (m *ItemMeanModel) ItemMean(itemId int64) (mean float64, ok bool) {
	mean, ok = m.means[itemId]
	return
}

// ItemMeanScorer scores every known item by its mean regardless of the user.
type ItemMeanScorer struct {
	model *ItemMeanModel
}

func NewItemMeanScorer(m *ItemMeanModel) *ItemMeanScorer {
	return &ItemMeanScorer{model: m}
}

func (s *ItemMeanScorer) Score(_ context.Context, _ int64, items []int64) (map[int64]float64, error) {
	scores := make(map[int64]float64, len(items))
	for _, itemId := range items {
		if mean, ok := s.model.ItemMean(itemId); ok {
			scores[itemId] = mean
		}
	}
	return scores, nil
}

// BiasModel is the global mean plus damped user and item offsets.
type BiasModel struct {
	intercept float64
	userBias  map[int64]float64
	itemBias  map[int64]float64
}

// NewBiasModel creates a bias model from known offsets.
func NewBiasModel(intercept float64, userBias, itemBias map[int64]float64) *BiasModel {
	if userBias == nil {
		userBias = make(map[int64]float64)
	}
	if itemBias == nil {
		itemBias = make(map[int64]float64)
	}
	return &BiasModel{intercept: intercept, userBias: userBias, itemBias: itemBias}
}

// BuildBias computes the global mean μ, item offsets b_i as the damped mean of r - μ and
// user offsets b_u as the damped mean of r - μ - b_i. Damping shrinks offsets toward zero.
func BuildBias(ctx context.Context, source data.RatingSource, damping float64) (*BiasModel, error) {
	if damping < 0 {
		return nil, errors.NotValidf("damping %v", damping)
	}
	defer model.ObserveBuild("bias", time.Now())
	// global mean
	var global accumulator
	items := make(map[int64]*accumulator)
	err := data.ForEachRating(ctx, source, batchSize, func(r data.Rating) error {
		global.add(r.Value)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	mu := global.mean()
	// item offsets
	err = data.ForEachRating(ctx, source, batchSize, func(r data.Rating) error {
		acc, ok := items[r.ItemId]
		if !ok {
			acc = new(accumulator)
			items[r.ItemId] = acc
		}
		acc.add(r.Value - mu)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	b := NewBiasModel(mu, nil, nil)
	for itemId, acc := range items {
		b.itemBias[itemId] = acc.damped(0, damping)
	}
	// user offsets
	users := make(map[int64]*accumulator)
	err = data.ForEachRating(ctx, source, batchSize, func(r data.Rating) error {
		acc, ok := users[r.UserId]
		if !ok {
			acc = new(accumulator)
			users[r.UserId] = acc
		}
		acc.add(r.Value - mu - b.itemBias[r.ItemId])
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	for userId, acc := range users {
		b.userBias[userId] = acc.damped(0, damping)
	}
	log.Logger().Info("build bias model",
		zap.Float64("intercept", mu),
		zap.Int("n_users", len(b.userBias)),
		zap.Int("n_items", len(b.itemBias)))
	return b, nil
}

func (b *BiasModel) Intercept() float64 {
	return b.intercept
}

func (b *BiasModel) UserBias(userId int64) float64 {
	return b.userBias[userId]
}

func (b *BiasModel) ItemBias(itemId int64) float64 {
	return b.itemBias[itemId]
}

// BiasScorer scores every item with the baseline prediction.
type BiasScorer struct {
	bias model.BiasModel
}

func NewBiasScorer(bias model.BiasModel) *BiasScorer {
	return &BiasScorer{bias: bias}
}

func (s *BiasScorer) Score(_ context.Context, userId int64, items []int64) (map[int64]float64, error) {
	scores := make(map[int64]float64, len(items))
	for _, itemId := range items {
		scores[itemId] = model.Baseline(s.bias, userId, itemId)
	}
	return scores, nil
}

// RatingSummary counts ratings of every item, which serves as item popularity.
type RatingSummary struct {
	globalMean float64
	counts     map[int64]int
	means      map[int64]float64
}

func BuildRatingSummary(ctx context.Context, source data.RatingSource) (*RatingSummary, error) {
	defer model.ObserveBuild("rating-summary", time.Now())
	var global accumulator
	items := make(map[int64]*accumulator)
	err := data.ForEachRating(ctx, source, batchSize, func(r data.Rating) error {
		global.add(r.Value)
		acc, ok := items[r.ItemId]
		if !ok {
			acc = new(accumulator)
			items[r.ItemId] = acc
		}
		acc.add(r.Value)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	s := &RatingSummary{
		globalMean: global.mean(),
		counts:     make(map[int64]int, len(items)),
		means:      make(map[int64]float64, len(items)),
	}
	for itemId, acc := range items {
		s.counts[itemId] = acc.count
		s.means[itemId] = acc.mean()
	}
	return s, nil
}

func (s *RatingSummary) GlobalMean() float64 {
	return s.globalMean
}

// ItemRatingCount returns the number of ratings of an item, zero for unknown items.
func (s *RatingSummary) ItemRatingCount(itemId int64) int {
	return s.counts[itemId]
}

// ItemOffset returns the item mean minus the global mean, zero for unknown items.
func (s *RatingSummary) ItemOffset(itemId int64) float64 {
	if mean, ok := s.means[itemId]; ok {
		return mean - s.globalMean
	}
	return 0
}
