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

package data

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GetUserRatingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gorse",
		Subsystem: "scorer_database",
		Name:      "get_user_ratings_seconds",
	})
	GetItemRatingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gorse",
		Subsystem: "scorer_database",
		Name:      "get_item_ratings_seconds",
	})
	GetItemTagsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gorse",
		Subsystem: "scorer_database",
		Name:      "get_item_tags_seconds",
	})
	BatchInsertRatingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gorse",
		Subsystem: "scorer_database",
		Name:      "batch_insert_ratings_seconds",
	})
	BatchInsertTagsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gorse",
		Subsystem: "scorer_database",
		Name:      "batch_insert_tags_seconds",
	})
)

// Instrumented records latencies of point queries and batch writes.
type Instrumented struct {
	Database
}

// WithMetrics wraps a database with latency histograms.
func WithMetrics(database Database) Database {
	return Instrumented{Database: database}
}

func observe(histogram prometheus.Histogram, start time.Time) {
	histogram.Observe(time.Since(start).Seconds())
}

func (d Instrumented) GetUserRatings(ctx context.Context, userId int64) ([]Rating, error) {
	defer observe(GetUserRatingsSeconds, time.Now())
	return d.Database.GetUserRatings(ctx, userId)
}

func (d Instrumented) GetItemRatings(ctx context.Context, itemId int64) ([]Rating, error) {
	defer observe(GetItemRatingsSeconds, time.Now())
	return d.Database.GetItemRatings(ctx, itemId)
}

func (d Instrumented) GetItemTags(ctx context.Context, itemId int64) ([]string, error) {
	defer observe(GetItemTagsSeconds, time.Now())
	return d.Database.GetItemTags(ctx, itemId)
}

func (d Instrumented) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	defer observe(BatchInsertRatingsSeconds, time.Now())
	return d.Database.BatchInsertRatings(ctx, ratings)
}

func (d Instrumented) BatchInsertTags(ctx context.Context, tags []Tag) error {
	defer observe(BatchInsertTagsSeconds, time.Now())
	return d.Database.BatchInsertTags(ctx, tags)
}
