// Copyright 2021 gorse Project Authors
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
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"github.com/gorse-io/scorer/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

const (
	usersKey       = "users"        // set of users with ratings
	itemsKey       = "items"        // set of items with ratings
	userRatingsKey = "user_ratings" // hash of ratings by user: item -> rating
	itemRatingsKey = "item_ratings" // hash of ratings by item: user -> rating
	itemTagsKey    = "item_tags"    // list of tag applications by item
	taggedItemsKey = "tagged_items" // set of items with tags
)

type redisRating struct {
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// Redis stores ratings in hashes keyed by user and by item. It suits small data sets and tests.
type Redis struct {
	storage.TablePrefix
	client *redis.Client
}

func (r *Redis) key(parts ...string) string {
	s := r.Key(parts[0])
	for _, part := range parts[1:] {
		s += "/" + part
	}
	return s
}

func formatId(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Init does nothing.
func (r *Redis) Init() error {
	return nil
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

// Close Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Purge removes every key under the table prefix.
func (r *Redis) Purge() error {
	ctx := context.Background()
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.Key("*"), 100).Result()
		if err != nil {
			return errors.Trace(err)
		}
		if len(keys) > 0 {
			if err = r.client.Del(ctx, keys...).Err(); err != nil {
				return errors.Trace(err)
			}
		}
		if cursor = next; cursor == 0 {
			return nil
		}
	}
}

func (r *Redis) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, rating := range ratings {
		data, err := json.Marshal(redisRating{Rating: rating.Value, Timestamp: rating.Timestamp})
		if err != nil {
			return errors.Trace(err)
		}
		userId, itemId := formatId(rating.UserId), formatId(rating.ItemId)
		pipe.HSet(ctx, r.key(userRatingsKey, userId), itemId, data)
		pipe.HSet(ctx, r.key(itemRatingsKey, itemId), userId, data)
		pipe.SAdd(ctx, r.key(usersKey), userId)
		pipe.SAdd(ctx, r.key(itemsKey), itemId)
	}
	_, err := pipe.Exec(ctx)
	return errors.Trace(err)
}

func (r *Redis) BatchInsertTags(ctx context.Context, tags []Tag) error {
	if len(tags) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, tag := range tags {
		itemId := formatId(tag.ItemId)
		pipe.RPush(ctx, r.key(itemTagsKey, itemId), tag.Tag)
		pipe.SAdd(ctx, r.key(taggedItemsKey), itemId)
	}
	_, err := pipe.Exec(ctx)
	return errors.Trace(err)
}

// getRatings decodes a rating hash. The hash field is the id of the other side.
func (r *Redis) getRatings(ctx context.Context, key string, build func(other int64, rating redisRating) Rating) ([]Rating, error) {
	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	ratings := make([]Rating, 0, len(values))
	for field, value := range values {
		other, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, errors.Trace(err)
		}
		var rating redisRating
		if err = json.Unmarshal([]byte(value), &rating); err != nil {
			return nil, errors.Trace(err)
		}
		ratings = append(ratings, build(other, rating))
	}
	SortRatings(ratings)
	return ratings, nil
}

func (r *Redis) GetUserRatings(ctx context.Context, userId int64) ([]Rating, error) {
	return r.getRatings(ctx, r.key(userRatingsKey, formatId(userId)), func(itemId int64, rating redisRating) Rating {
		return Rating{UserId: userId, ItemId: itemId, Value: rating.Rating, Timestamp: rating.Timestamp}
	})
}

func (r *Redis) GetItemRatings(ctx context.Context, itemId int64) ([]Rating, error) {
	return r.getRatings(ctx, r.key(itemRatingsKey, formatId(itemId)), func(userId int64, rating redisRating) Rating {
		return Rating{UserId: userId, ItemId: itemId, Value: rating.Rating, Timestamp: rating.Timestamp}
	})
}

func (r *Redis) getIds(ctx context.Context, key string) ([]int64, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, errors.Trace(err)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *Redis) GetUserIds(ctx context.Context) ([]int64, error) {
	return r.getIds(ctx, r.key(usersKey))
}

func (r *Redis) GetItemIds(ctx context.Context) ([]int64, error) {
	return r.getIds(ctx, r.key(itemsKey))
}

// GetRatingStream walks users in ascending order and emits their ratings in batches.
func (r *Redis) GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error) {
	ratingChan := make(chan []Rating, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(ratingChan)
		defer close(errChan)
		userIds, err := r.GetUserIds(ctx)
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		ratings := make([]Rating, 0, batchSize)
		for _, userId := range userIds {
			userRatings, err := r.GetUserRatings(ctx, userId)
			if err != nil {
				errChan <- errors.Trace(err)
				return
			}
			for _, rating := range userRatings {
				ratings = append(ratings, rating)
				if len(ratings) == batchSize {
					ratingChan <- ratings
					ratings = make([]Rating, 0, batchSize)
				}
			}
		}
		if len(ratings) > 0 {
			ratingChan <- ratings
		}
		errChan <- nil
	}()
	return ratingChan, errChan
}

func (r *Redis) GetItemTags(ctx context.Context, itemId int64) ([]string, error) {
	tags, err := r.client.LRange(ctx, r.key(itemTagsKey, formatId(itemId)), 0, -1).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return tags, nil
}

func (r *Redis) GetTagStream(ctx context.Context, batchSize int) (chan []Tag, chan error) {
	tagChan := make(chan []Tag, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(tagChan)
		defer close(errChan)
		itemIds, err := r.getIds(ctx, r.key(taggedItemsKey))
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		tags := make([]Tag, 0, batchSize)
		for _, itemId := range itemIds {
			itemTags, err := r.GetItemTags(ctx, itemId)
			if err != nil {
				errChan <- errors.Trace(err)
				return
			}
			for _, tag := range itemTags {
				tags = append(tags, Tag{ItemId: itemId, Tag: tag})
				if len(tags) == batchSize {
					tagChan <- tags
					tags = make([]Tag, 0, batchSize)
				}
			}
		}
		if len(tags) > 0 {
			tagChan <- tags
		}
		errChan <- nil
	}()
	return tagChan, errChan
}
