// Copyright 2022 gorse Project Authors
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

package model

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScoreSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gorse",
		Subsystem: "scorer",
		Name:      "score_seconds",
	}, []string{"scorer"})
	OmittedItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gorse",
		Subsystem: "scorer",
		Name:      "omitted_items_total",
	}, []string{"scorer"})
	BuildSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gorse",
		Subsystem: "scorer",
		Name:      "build_seconds",
	}, []string{"model"})
)

// ObserveBuild records the time used to build a model.
func ObserveBuild(name string, start time.Time) {
	BuildSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

type instrumented struct {
	name   string
	scorer Scorer
}

// WithMetrics records latency and omitted items of a scorer.
func WithMetrics(name string, scorer Scorer) Scorer {
	return &instrumented{name: name, scorer: scorer}
}

func (s *instrumented) Score(ctx context.Context, userId int64, items []int64) (map[int64]float64, error) {
	start := time.Now()
	scores, err := s.scorer.Score(ctx, userId, items)
	if err != nil {
		return nil, err
	}
	ScoreSeconds.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	if omitted := len(items) - len(scores); omitted > 0 {
		OmittedItemsTotal.WithLabelValues(s.name).Add(float64(omitted))
	}
	return scores, nil
}
