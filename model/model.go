// Copyright 2020 gorse Project Authors
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

// Package model defines the contract shared by rating scorers. Implementations live
// in the sub-packages.
package model

import (
	"context"
	"sync/atomic"

	"github.com/juju/errors"
)

// Scorer predicts how much a user likes items. Items that can not be scored are absent
// from the result. Implementations are safe for concurrent use.
type Scorer interface {
	Score(ctx context.Context, userId int64, items []int64) (map[int64]float64, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, userId int64, items []int64) (map[int64]float64, error)

func (f ScorerFunc) Score(ctx context.Context, userId int64, items []int64) (map[int64]float64, error) {
	return f(ctx, userId, items)
}

// ScoreOne scores a single (user, item) pair. ok is false if the item can not be scored.
func ScoreOne(ctx context.Context, scorer Scorer, userId, itemId int64) (score float64, ok bool, err error) {
	scores, err := scorer.Score(ctx, userId, []int64{itemId})
	if err != nil {
		return 0, false, errors.Trace(err)
	}
	score, ok = scores[itemId]
	return
}

// BiasModel is the baseline of a rating: a global intercept plus per-user and per-item
// offsets. Offsets of unknown users and items are zero.
type BiasModel interface {
	Intercept() float64
	UserBias(userId int64) float64
	ItemBias(itemId int64) float64
}

// Baseline returns the bias prediction for a (user, item) pair.
func Baseline(bias BiasModel, userId, itemId int64) float64 {
	return bias.Intercept() + bias.UserBias(userId) + bias.ItemBias(itemId)
}

// Holder publishes immutable models to concurrent readers. A rebuild stores a new model
// instead of mutating the current one.
type Holder[T any] struct {
	p atomic.Pointer[T]
}

func NewHolder[T any](model *T) *Holder[T] {
	h := new(Holder[T])
	h.p.Store(model)
	return h
}

// Load returns the current model, nil before the first Store.
func (h *Holder[T]) Load() *T {
	return h.p.Load()
}

func (h *Holder[T]) Store(model *T) {
	h.p.Store(model)
}
