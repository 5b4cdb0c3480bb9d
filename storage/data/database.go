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
	"sort"
	"strings"
	"time"

	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
	"moul.io/zapgorm2"
)

var ErrNoDatabase = errors.NotAssignedf("database")

// Rating is an observed (user, item, rating) triple. The timestamp is optional.
type Rating struct {
	UserId    int64
	ItemId    int64
	Value     float64
	Timestamp time.Time
}

// Tag is one application of a tag to an item.
type Tag struct {
	ItemId int64
	Tag    string
}

// SortRatings sorts ratings by user id and then by item id.
func SortRatings(ratings []Rating) {
	sort.Slice(ratings, func(i, j int) bool {
		if ratings[i].UserId != ratings[j].UserId {
			return ratings[i].UserId < ratings[j].UserId
		}
		return ratings[i].ItemId < ratings[j].ItemId
	})
}

// RatingSource is the read side of rating storage consumed by model builders and scorers.
type RatingSource interface {
	// GetUserRatings returns all ratings of a user. Unknown users have no ratings.
	GetUserRatings(ctx context.Context, userId int64) ([]Rating, error)
	// GetItemRatings returns all ratings of an item. Unknown items have no ratings.
	GetItemRatings(ctx context.Context, itemId int64) ([]Rating, error)
	// GetUserIds returns ids of users with at least one rating, ascending.
	GetUserIds(ctx context.Context) ([]int64, error)
	// GetItemIds returns ids of items with at least one rating, ascending.
	GetItemIds(ctx context.Context) ([]int64, error)
	// GetRatingStream streams all ratings in batches.
	GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error)
}

// TagSource provides tags applied to items.
type TagSource interface {
	// GetItemTags returns tag applications of an item, duplicates included.
	GetItemTags(ctx context.Context, itemId int64) ([]string, error)
	// GetTagStream streams all tag applications in batches.
	GetTagStream(ctx context.Context, batchSize int) (chan []Tag, chan error)
}

type Database interface {
	RatingSource
	TagSource
	Init() error
	Ping() error
	Close() error
	Purge() error
	BatchInsertRatings(ctx context.Context, ratings []Rating) error
	BatchInsertTags(ctx context.Context, tags []Tag) error
}

// Open a connection to a database.
func Open(path, tablePrefix string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"parseTime": "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		database := new(SQLDatabase)
		database.driver = MySQL
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = sql.Open("mysql", name); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = sql.Open("postgres", path); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.MongoPrefix) || strings.HasPrefix(path, storage.MongoSrvPrefix) {
		database := new(MongoDB)
		opts := options.Client()
		opts.ApplyURI(path)
		if database.client, err = mongo.Connect(context.Background(), opts); err != nil {
			return nil, errors.Trace(err)
		}
		// parse DSN and extract database name
		if cs, err := connstring.ParseAndValidate(path); err != nil {
			return nil, errors.Trace(err)
		} else {
			database.dbName = cs.Database
			database.TablePrefix = storage.TablePrefix(tablePrefix)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		name := path[len(storage.SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = sql.Open("sqlite", name); err != nil {
			return nil, errors.Trace(err)
		}
		gormConfig := storage.NewGORMConfig(tablePrefix)
		gormConfig.Logger = &zapgorm2.Logger{
			ZapLogger:                 log.Logger(),
			LogLevel:                  logger.Warn,
			SlowThreshold:             10 * time.Second,
			SkipCallerLookup:          false,
			IgnoreRecordNotFoundError: false,
		}
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, gormConfig)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.RedisPrefix) || strings.HasPrefix(path, storage.RedissPrefix) {
		opt, err := redis.ParseURL(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database := new(Redis)
		database.client = redis.NewClient(opt)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}

// ForEachRating streams all ratings of a source and passes them to handler one by one.
func ForEachRating(ctx context.Context, source RatingSource, batchSize int, handler func(Rating) error) error {
	ratingChan, errChan := source.GetRatingStream(ctx, batchSize)
	for batch := range ratingChan {
		for _, rating := range batch {
			if err := handler(rating); err != nil {
				// drain the stream so that the producer exits
				for range ratingChan {
				}
				return errors.Trace(err)
			}
		}
	}
	return errors.Trace(<-errChan)
}

// collectStream drains a stream into a slice.
func collectStream[T any](values chan []T, errChan chan error) ([]T, error) {
	var all []T
	for batch := range values {
		all = append(all, batch...)
	}
	if err := <-errChan; err != nil {
		return nil, errors.Trace(err)
	}
	return all, nil
}
