// Copyright 2025 gorse Project Authors
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

package dataset

import (
	"context"
	"math/rand"
	"slices"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"modernc.org/strutil"
)

const batchSize = 1024

// Dataset is an immutable in-memory snapshot of ratings and tags. It implements
// data.RatingSource and data.TagSource so that model builders see a consistent view
// while they run.
type Dataset struct {
	timestamp   time.Time
	users       *Index
	items       *Index
	ratings     []data.Rating
	userRatings [][]data.Rating
	itemRatings [][]data.Rating
	userIds     []int64
	itemIds     []int64
	itemTags    map[int64][]string
	tags        []data.Tag
}

// NewDataset freezes ratings and tags into a snapshot. When a (user, item) pair is
// rated more than once, the last rating wins.
func NewDataset(timestamp time.Time, ratings []data.Rating, tags []data.Tag) *Dataset {
	type pair struct{ userId, itemId int64 }
	latest := make(map[pair]int, len(ratings))
	deduplicated := make([]data.Rating, 0, len(ratings))
	for _, r := range ratings {
		key := pair{r.UserId, r.ItemId}
		if i, exist := latest[key]; exist {
			deduplicated[i] = r
			continue
		}
		latest[key] = len(deduplicated)
		deduplicated = append(deduplicated, r)
	}
	data.SortRatings(deduplicated)

	d := &Dataset{
		timestamp: timestamp,
		users:     NewIndex(),
		items:     NewIndex(),
		ratings:   deduplicated,
		itemTags:  make(map[int64][]string),
		tags:      slices.Clone(tags),
	}
	for _, r := range deduplicated {
		userIndex, itemIndex := d.users.Add(r.UserId), d.items.Add(r.ItemId)
		if userIndex == len(d.userRatings) {
			d.userRatings = append(d.userRatings, nil)
		}
		if itemIndex == len(d.itemRatings) {
			d.itemRatings = append(d.itemRatings, nil)
		}
		// ratings are sorted by user then item, so both lists come out sorted
		d.userRatings[userIndex] = append(d.userRatings[userIndex], r)
		d.itemRatings[itemIndex] = append(d.itemRatings[itemIndex], r)
	}
	d.userIds = slices.Sorted(slices.Values(d.users.Ids()))
	d.itemIds = slices.Sorted(slices.Values(d.items.Ids()))
	// repeated tags share one string
	pool := strutil.NewPool()
	for i, tag := range d.tags {
		d.tags[i].Tag = pool.Align(tag.Tag)
		d.itemTags[tag.ItemId] = append(d.itemTags[tag.ItemId], d.tags[i].Tag)
	}
	return d
}

func (d *Dataset) GetTimestamp() time.Time {
	return d.timestamp
}

func (d *Dataset) CountUsers() int {
	return d.users.Len()
}

func (d *Dataset) CountItems() int {
	return d.items.Len()
}

func (d *Dataset) CountRatings() int {
	return len(d.ratings)
}

// GetRatings returns all ratings sorted by user and item. The slice must not be modified.
func (d *Dataset) GetRatings() []data.Rating {
	return d.ratings
}

// GetTags returns all tag applications in insertion order.
func (d *Dataset) GetTags() []data.Tag {
	return d.tags
}

// ItemRatingCount returns the number of ratings of an item.
func (d *Dataset) ItemRatingCount(itemId int64) int {
	return d.items.Count(itemId)
}

func (d *Dataset) GetUserRatings(_ context.Context, userId int64) ([]data.Rating, error) {
	if i, ok := d.users.ToIndex(userId); ok {
		return d.userRatings[i], nil
	}
	return nil, nil
}

func (d *Dataset) GetItemRatings(_ context.Context, itemId int64) ([]data.Rating, error) {
	if i, ok := d.items.ToIndex(itemId); ok {
		return d.itemRatings[i], nil
	}
	return nil, nil
}

func (d *Dataset) GetUserIds(_ context.Context) ([]int64, error) {
	return d.userIds, nil
}

func (d *Dataset) GetItemIds(_ context.Context) ([]int64, error) {
	return d.itemIds, nil
}

func (d *Dataset) GetRatingStream(ctx context.Context, batchSize int) (chan []data.Rating, chan error) {
	return stream(ctx, d.ratings, batchSize)
}

func (d *Dataset) GetItemTags(_ context.Context, itemId int64) ([]string, error) {
	return d.itemTags[itemId], nil
}

func (d *Dataset) GetTagStream(ctx context.Context, batchSize int) (chan []data.Tag, chan error) {
	return stream(ctx, d.tags, batchSize)
}

func stream[T any](ctx context.Context, values []T, batchSize int) (chan []T, chan error) {
	valueChan := make(chan []T, 1)
	errChan := make(chan error, 1)
	go func() {
		defer close(valueChan)
		defer close(errChan)
		for begin := 0; begin < len(values); begin += batchSize {
			end := min(begin+batchSize, len(values))
			select {
			case <-ctx.Done():
				errChan <- errors.Trace(ctx.Err())
				return
			case valueChan <- values[begin:end]:
			}
		}
		errChan <- nil
	}()
	return valueChan, errChan
}

// Source is a storage that serves both ratings and tags.
type Source interface {
	data.RatingSource
	data.TagSource
}

type loadOptions struct {
	filter    *vm.Program
	batchSize int
}

type LoadOption func(*loadOptions) error

// WithFilter keeps only ratings matching a boolean expression over user_id, item_id,
// rating and timestamp, e.g. "rating >= 3 && timestamp > date('2020-01-01')".
func WithFilter(expression string) LoadOption {
	return func(opts *loadOptions) error {
		program, err := expr.Compile(expression, expr.Env(ratingEnv{}), expr.AsBool())
		if err != nil {
			return errors.Annotatef(err, "invalid filter %q", expression)
		}
		opts.filter = program
		return nil
	}
}

// WithBatchSize sets the batch size of streams.
func WithBatchSize(n int) LoadOption {
	return func(opts *loadOptions) error {
		if n <= 0 {
			return errors.NotValidf("batch size %d", n)
		}
		opts.batchSize = n
		return nil
	}
}

type ratingEnv struct {
	UserId    int64     `expr:"user_id"`
	ItemId    int64     `expr:"item_id"`
	Rating    float64   `expr:"rating"`
	Timestamp time.Time `expr:"timestamp"`
}

// LoadDataset takes a snapshot of a storage.
func LoadDataset(ctx context.Context, source Source, opts ...LoadOption) (*Dataset, error) {
	options := loadOptions{batchSize: batchSize}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, errors.Trace(err)
		}
	}
	start := time.Now()
	var ratings []data.Rating
	ratingChan, errChan := source.GetRatingStream(ctx, options.batchSize)
	for batch := range ratingChan {
		for _, r := range batch {
			if options.filter != nil {
				matched, err := expr.Run(options.filter, ratingEnv{
					UserId:    r.UserId,
					ItemId:    r.ItemId,
					Rating:    r.Value,
					Timestamp: r.Timestamp,
				})
				if err != nil {
					// drain the stream before leaving
					for range ratingChan {
					}
					return nil, errors.Trace(err)
				}
				if !matched.(bool) {
					continue
				}
			}
			ratings = append(ratings, r)
		}
	}
	if err := <-errChan; err != nil {
		return nil, errors.Trace(err)
	}
	var tags []data.Tag
	tagChan, errChan := source.GetTagStream(ctx, options.batchSize)
	for batch := range tagChan {
		tags = append(tags, batch...)
	}
	if err := <-errChan; err != nil {
		return nil, errors.Trace(err)
	}
	dataset := NewDataset(time.Now(), ratings, tags)
	log.Logger().Info("load dataset",
		zap.Int("n_users", dataset.CountUsers()),
		zap.Int("n_items", dataset.CountItems()),
		zap.Int("n_ratings", dataset.CountRatings()),
		zap.Int("n_tags", len(tags)),
		zap.Duration("used_time", time.Since(start)))
	return dataset, nil
}

// Split shuffles ratings with a seeded generator and returns the first fraction of them
// as the training split and the rest as the test split.
func Split(ratings []data.Rating, fraction float64, seed int64) (train, test []data.Rating, err error) {
	if fraction < 0 || fraction > 1 {
		return nil, nil, errors.NotValidf("split fraction %v", fraction)
	}
	shuffled := slices.Clone(ratings)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	n := int(float64(len(shuffled)) * fraction)
	return shuffled[:n], shuffled[n:], nil
}
