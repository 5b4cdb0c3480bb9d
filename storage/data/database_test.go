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
	"time"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type ratingTuple = lo.Tuple3[int64, int64, float64]

func toTuples(ratings []Rating) []ratingTuple {
	return lo.Map(ratings, func(r Rating, _ int) ratingTuple {
		return lo.T3(r.UserId, r.ItemId, r.Value)
	})
}

type baseTestSuite struct {
	suite.Suite
	Database Database
}

func (suite *baseTestSuite) SetupTest() {
	err := suite.Database.Ping()
	suite.NoError(err)
	err = suite.Database.Purge()
	suite.NoError(err)
}

func (suite *baseTestSuite) TearDownTest() {
	err := suite.Database.Purge()
	suite.NoError(err)
}

func (suite *baseTestSuite) insertRatings() {
	ctx := context.Background()
	timestamp := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var ratings []Rating
	for userId := int64(3); userId >= 1; userId-- {
		for itemId := int64(1); itemId <= userId+1; itemId++ {
			ratings = append(ratings, Rating{
				UserId:    userId,
				ItemId:    itemId * 10,
				Value:     float64(userId + itemId),
				Timestamp: timestamp,
			})
		}
	}
	err := suite.Database.BatchInsertRatings(ctx, ratings)
	suite.NoError(err)
}

func (suite *baseTestSuite) TestRatings() {
	ctx := context.Background()
	suite.insertRatings()

	ratings, err := suite.Database.GetUserRatings(ctx, 2)
	suite.NoError(err)
	suite.Equal([]ratingTuple{{2, 10, 3}, {2, 20, 4}, {2, 30, 5}}, toTuples(ratings))
	suite.Equal(int64(2020), int64(ratings[0].Timestamp.Year()))

	ratings, err = suite.Database.GetItemRatings(ctx, 30)
	suite.NoError(err)
	suite.Equal([]ratingTuple{{2, 30, 5}, {3, 30, 6}}, toTuples(ratings))

	userIds, err := suite.Database.GetUserIds(ctx)
	suite.NoError(err)
	suite.Equal([]int64{1, 2, 3}, userIds)
	itemIds, err := suite.Database.GetItemIds(ctx)
	suite.NoError(err)
	suite.Equal([]int64{10, 20, 30, 40}, itemIds)

	// unknown users and items have no ratings
	ratings, err = suite.Database.GetUserRatings(ctx, 100)
	suite.NoError(err)
	suite.Empty(ratings)
	ratings, err = suite.Database.GetItemRatings(ctx, 100)
	suite.NoError(err)
	suite.Empty(ratings)
}

func (suite *baseTestSuite) TestOverwriteRating() {
	ctx := context.Background()
	suite.insertRatings()
	err := suite.Database.BatchInsertRatings(ctx, []Rating{
		{UserId: 1, ItemId: 10, Value: 0.5},
		{UserId: 1, ItemId: 10, Value: 4.5},
	})
	suite.NoError(err)
	ratings, err := suite.Database.GetUserRatings(ctx, 1)
	suite.NoError(err)
	suite.Equal([]ratingTuple{{1, 10, 4.5}, {1, 20, 3}}, toTuples(ratings))
}

func (suite *baseTestSuite) TestRatingStream() {
	ctx := context.Background()
	suite.insertRatings()
	ratingChan, errChan := suite.Database.GetRatingStream(ctx, 2)
	var ratings []Rating
	for batch := range ratingChan {
		suite.LessOrEqual(len(batch), 2)
		ratings = append(ratings, batch...)
	}
	suite.NoError(<-errChan)
	suite.Equal([]ratingTuple{
		{1, 10, 2}, {1, 20, 3},
		{2, 10, 3}, {2, 20, 4}, {2, 30, 5},
		{3, 10, 4}, {3, 20, 5}, {3, 30, 6}, {3, 40, 7},
	}, toTuples(ratings))
}

func (suite *baseTestSuite) TestTags() {
	ctx := context.Background()
	err := suite.Database.BatchInsertTags(ctx, []Tag{
		{ItemId: 1, Tag: "funny"},
		{ItemId: 2, Tag: "sad"},
		{ItemId: 1, Tag: "dark"},
		{ItemId: 1, Tag: "funny"},
	})
	suite.NoError(err)
	tags, err := suite.Database.GetItemTags(ctx, 1)
	suite.NoError(err)
	suite.Equal([]string{"funny", "dark", "funny"}, tags)
	tags, err = suite.Database.GetItemTags(ctx, 3)
	suite.NoError(err)
	suite.Empty(tags)

	all, err := collectStream(suite.Database.GetTagStream(ctx, 3))
	suite.NoError(err)
	suite.ElementsMatch([]Tag{
		{ItemId: 1, Tag: "funny"},
		{ItemId: 2, Tag: "sad"},
		{ItemId: 1, Tag: "dark"},
		{ItemId: 1, Tag: "funny"},
	}, all)
}

func (suite *baseTestSuite) TestPurge() {
	ctx := context.Background()
	suite.insertRatings()
	err := suite.Database.BatchInsertTags(ctx, []Tag{{ItemId: 1, Tag: "funny"}})
	suite.NoError(err)
	err = suite.Database.Purge()
	suite.NoError(err)
	ratings, err := collectStream(suite.Database.GetRatingStream(ctx, 10))
	suite.NoError(err)
	suite.Empty(ratings)
	tags, err := collectStream(suite.Database.GetTagStream(ctx, 10))
	suite.NoError(err)
	suite.Empty(tags)
	userIds, err := suite.Database.GetUserIds(ctx)
	suite.NoError(err)
	suite.Empty(userIds)
}

func (suite *baseTestSuite) TestMetrics() {
	ctx := context.Background()
	instrumented := WithMetrics(suite.Database)
	err := instrumented.BatchInsertRatings(ctx, []Rating{{UserId: 1, ItemId: 1, Value: 5}})
	suite.NoError(err)
	ratings, err := instrumented.GetUserRatings(ctx, 1)
	suite.NoError(err)
	suite.Equal([]ratingTuple{{1, 1, 5}}, toTuples(ratings))
}

func (suite *baseTestSuite) TestForEachRating() {
	ctx := context.Background()
	suite.insertRatings()
	var sum float64
	err := ForEachRating(ctx, suite.Database, 4, func(r Rating) error {
		sum += r.Value
		return nil
	})
	suite.NoError(err)
	suite.Equal(float64(2+3+3+4+5+4+5+6+7), sum)

	stop := errors.New("stop")
	err = ForEachRating(ctx, suite.Database, 1, func(r Rating) error {
		return stop
	})
	suite.ErrorIs(err, stop)
}
