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
	"slices"
	"time"

	"github.com/gorse-io/scorer/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRating struct {
	UserId    int64     `bson:"user_id"`
	ItemId    int64     `bson:"item_id"`
	Rating    float64   `bson:"rating"`
	Timestamp time.Time `bson:"timestamp"`
}

func (r mongoRating) toRating() Rating {
	return Rating{UserId: r.UserId, ItemId: r.ItemId, Value: r.Rating, Timestamp: r.Timestamp}
}

type mongoTag struct {
	ItemId int64  `bson:"item_id"`
	Tag    string `bson:"tag"`
}

// MongoDB is the data storage based on MongoDB.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

// Init collections and indices in MongoDB.
func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	// list collections
	var hasRatings, hasTags bool
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	for _, collectionName := range collections {
		switch collectionName {
		case db.RatingsTable():
			hasRatings = true
		case db.TagsTable():
			hasTags = true
		}
	}
	// create collections
	if !hasRatings {
		if err = d.CreateCollection(ctx, db.RatingsTable()); err != nil {
			return errors.Trace(err)
		}
	}
	if !hasTags {
		if err = d.CreateCollection(ctx, db.TagsTable()); err != nil {
			return errors.Trace(err)
		}
	}
	// create index
	_, err = d.Collection(db.RatingsTable()).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{"user_id", 1}, {"item_id", 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{"item_id", 1}},
		},
	})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = d.Collection(db.TagsTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{"item_id", 1}},
	})
	return errors.Trace(err)
}

func (db *MongoDB) Ping() error {
	return db.client.Ping(context.Background(), nil)
}

// Close connection to MongoDB.
func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoDB) Purge() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	for _, name := range []string{db.RatingsTable(), db.TagsTable()} {
		if _, err := d.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertRatings upserts ratings keyed by (user, item).
func (db *MongoDB) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	var models []mongo.WriteModel
	for _, r := range ratings {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"user_id": r.UserId, "item_id": r.ItemId}).
			SetUpdate(bson.M{"$set": mongoRating{
				UserId:    r.UserId,
				ItemId:    r.ItemId,
				Rating:    r.Value,
				Timestamp: r.Timestamp,
			}}))
	}
	// ordered writes keep "last one wins" for duplicates in a batch
	_, err := c.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return errors.Trace(err)
}

func (db *MongoDB) BatchInsertTags(ctx context.Context, tags []Tag) error {
	if len(tags) == 0 {
		return nil
	}
	c := db.client.Database(db.dbName).Collection(db.TagsTable())
	docs := lo.Map(tags, func(t Tag, _ int) any {
		return mongoTag{ItemId: t.ItemId, Tag: t.Tag}
	})
	_, err := c.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return errors.Trace(err)
}

func (db *MongoDB) findRatings(ctx context.Context, filter bson.M, sort bson.D) ([]Rating, error) {
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	r, err := c.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close(ctx)
	var ratings []Rating
	for r.Next(ctx) {
		var row mongoRating
		if err = r.Decode(&row); err != nil {
			return nil, errors.Trace(err)
		}
		ratings = append(ratings, row.toRating())
	}
	return ratings, errors.Trace(r.Err())
}

func (db *MongoDB) GetUserRatings(ctx context.Context, userId int64) ([]Rating, error) {
	return db.findRatings(ctx, bson.M{"user_id": bson.M{"$eq": userId}}, bson.D{{"item_id", 1}})
}

func (db *MongoDB) GetItemRatings(ctx context.Context, itemId int64) ([]Rating, error) {
	return db.findRatings(ctx, bson.M{"item_id": bson.M{"$eq": itemId}}, bson.D{{"user_id", 1}})
}

func (db *MongoDB) distinctIds(ctx context.Context, field string) ([]int64, error) {
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	values, err := c.Distinct(ctx, field, bson.M{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids := make([]int64, 0, len(values))
	for _, value := range values {
		switch v := value.(type) {
		case int64:
			ids = append(ids, v)
		case int32:
			ids = append(ids, int64(v))
		default:
			return nil, errors.NotValidf("%s %v", field, value)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (db *MongoDB) GetUserIds(ctx context.Context) ([]int64, error) {
	return db.distinctIds(ctx, "user_id")
}

func (db *MongoDB) GetItemIds(ctx context.Context) ([]int64, error) {
	return db.distinctIds(ctx, "item_id")
}

func (db *MongoDB) GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error) {
	ratingChan := make(chan []Rating, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(ratingChan)
		defer close(errChan)
		c := db.client.Database(db.dbName).Collection(db.RatingsTable())
		opt := options.Find().SetSort(bson.D{{"user_id", 1}, {"item_id", 1}})
		r, err := c.Find(ctx, bson.M{}, opt)
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer r.Close(ctx)
		ratings := make([]Rating, 0, batchSize)
		for r.Next(ctx) {
			var row mongoRating
			if err = r.Decode(&row); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			ratings = append(ratings, row.toRating())
			if len(ratings) == batchSize {
				ratingChan <- ratings
				ratings = make([]Rating, 0, batchSize)
			}
		}
		if err = r.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(ratings) > 0 {
			ratingChan <- ratings
		}
		errChan <- nil
	}()
	return ratingChan, errChan
}

func (db *MongoDB) GetItemTags(ctx context.Context, itemId int64) ([]string, error) {
	c := db.client.Database(db.dbName).Collection(db.TagsTable())
	r, err := c.Find(ctx, bson.M{"item_id": bson.M{"$eq": itemId}}, options.Find().SetSort(bson.D{{"_id", 1}}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close(ctx)
	var tags []string
	for r.Next(ctx) {
		var row mongoTag
		if err = r.Decode(&row); err != nil {
			return nil, errors.Trace(err)
		}
		tags = append(tags, row.Tag)
	}
	return tags, errors.Trace(r.Err())
}

func (db *MongoDB) GetTagStream(ctx context.Context, batchSize int) (chan []Tag, chan error) {
	tagChan := make(chan []Tag, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(tagChan)
		defer close(errChan)
		c := db.client.Database(db.dbName).Collection(db.TagsTable())
		r, err := c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{"_id", 1}}))
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer r.Close(ctx)
		tags := make([]Tag, 0, batchSize)
		for r.Next(ctx) {
			var row mongoTag
			if err = r.Decode(&row); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			tags = append(tags, Tag{ItemId: row.ItemId, Tag: row.Tag})
			if len(tags) == batchSize {
				tagChan <- tags
				tags = make([]Tag, 0, batchSize)
			}
		}
		if err = r.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(tags) > 0 {
			tagChan <- tags
		}
		errChan <- nil
	}()
	return tagChan, errChan
}
