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

package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/gorse-io/scorer/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const bufSize = 1

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

type SQLRating struct {
	UserId    int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ItemId    int64     `gorm:"column:item_id;primaryKey;autoIncrement:false;index"`
	Rating    float64   `gorm:"column:rating;not null"`
	Timestamp time.Time `gorm:"column:time_stamp"`
}

func (r SQLRating) toRating() Rating {
	return Rating{UserId: r.UserId, ItemId: r.ItemId, Value: r.Rating, Timestamp: r.Timestamp}
}

type SQLTag struct {
	Id     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ItemId int64  `gorm:"column:item_id;index;not null"`
	Tag    string `gorm:"column:tag;type:varchar(256);not null"`
}

// SQLDatabase stores ratings and tags in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init tables and indices.
func (d *SQLDatabase) Init() error {
	if err := d.gormDB.AutoMigrate(SQLRating{}, SQLTag{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

// Close database connection.
func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge deletes all ratings and tags.
func (d *SQLDatabase) Purge() error {
	for _, tableName := range []string{d.RatingsTable(), d.TagsTable()} {
		if err := d.gormDB.Exec("DELETE FROM " + tableName).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertRatings inserts ratings. An existing (user, item) rating is overwritten.
func (d *SQLDatabase) BatchInsertRatings(ctx context.Context, ratings []Rating) error {
	if len(ratings) == 0 {
		return nil
	}
	// deduplicate inside the batch, the last rating wins
	latest := make(map[lo.Tuple2[int64, int64]]Rating, len(ratings))
	keys := make([]lo.Tuple2[int64, int64], 0, len(ratings))
	for _, r := range ratings {
		key := lo.Tuple2[int64, int64]{A: r.UserId, B: r.ItemId}
		if _, exist := latest[key]; !exist {
			keys = append(keys, key)
		}
		latest[key] = r
	}
	rows := lo.Map(keys, func(key lo.Tuple2[int64, int64], _ int) SQLRating {
		r := latest[key]
		return SQLRating{UserId: r.UserId, ItemId: r.ItemId, Rating: r.Value, Timestamp: r.Timestamp}
	})
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "time_stamp"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

// BatchInsertTags appends tag applications.
func (d *SQLDatabase) BatchInsertTags(ctx context.Context, tags []Tag) error {
	if len(tags) == 0 {
		return nil
	}
	rows := lo.Map(tags, func(t Tag, _ int) SQLTag {
		return SQLTag{ItemId: t.ItemId, Tag: t.Tag}
	})
	return errors.Trace(d.gormDB.WithContext(ctx).Create(&rows).Error)
}

func (d *SQLDatabase) GetUserRatings(ctx context.Context, userId int64) ([]Rating, error) {
	var rows []SQLRating
	if err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
		Where("user_id = ?", userId).Order("item_id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(rows, func(r SQLRating, _ int) Rating { return r.toRating() }), nil
}

func (d *SQLDatabase) GetItemRatings(ctx context.Context, itemId int64) ([]Rating, error) {
	var rows []SQLRating
	if err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
		Where("item_id = ?", itemId).Order("user_id").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(rows, func(r SQLRating, _ int) Rating { return r.toRating() }), nil
}

func (d *SQLDatabase) GetUserIds(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
		Distinct("user_id").Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return ids, nil
}

func (d *SQLDatabase) GetItemIds(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
		Distinct("item_id").Order("item_id").Pluck("item_id", &ids).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return ids, nil
}

// GetRatingStream streams ratings ordered by user id and item id.
func (d *SQLDatabase) GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error) {
	ratingChan := make(chan []Rating, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(ratingChan)
		defer close(errChan)
		result, err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
			Select("user_id, item_id, rating, time_stamp").Order("user_id, item_id").Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer result.Close()
		ratings := make([]Rating, 0, batchSize)
		for result.Next() {
			var row SQLRating
			if err = d.gormDB.ScanRows(result, &row); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			ratings = append(ratings, row.toRating())
			if len(ratings) == batchSize {
				ratingChan <- ratings
				ratings = make([]Rating, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
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

func (d *SQLDatabase) GetItemTags(ctx context.Context, itemId int64) ([]string, error) {
	var tags []string
	if err := d.gormDB.WithContext(ctx).Table(d.TagsTable()).
		Where("item_id = ?", itemId).Order("id").Pluck("tag", &tags).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return tags, nil
}

func (d *SQLDatabase) GetTagStream(ctx context.Context, batchSize int) (chan []Tag, chan error) {
	tagChan := make(chan []Tag, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(tagChan)
		defer close(errChan)
		result, err := d.gormDB.WithContext(ctx).Table(d.TagsTable()).
			Select("id, item_id, tag").Order("id").Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer result.Close()
		tags := make([]Tag, 0, batchSize)
		for result.Next() {
			var row SQLTag
			if err = d.gormDB.ScanRows(result, &row); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			tags = append(tags, Tag{ItemId: row.ItemId, Tag: row.Tag})
			if len(tags) == batchSize {
				tagChan <- tags
				tags = make([]Tag, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
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
