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
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
)

type MongoTestSuite struct {
	baseTestSuite
}

func (suite *MongoTestSuite) SetupSuite() {
	ctx := context.Background()
	var err error
	mongoUri := os.Getenv("MONGO_URI")
	// drop the test database
	suite.Database, err = Open(mongoUri, "")
	suite.NoError(err)
	mongoDatabase, ok := suite.Database.(*MongoDB)
	suite.True(ok)
	err = mongoDatabase.client.Database("gorse_scorer_test").Drop(ctx)
	suite.NoError(err)
	err = suite.Database.Close()
	suite.NoError(err)
	// create schema
	suite.Database, err = Open(mongoUri+"gorse_scorer_test?authSource=admin&connect=direct", "gorse_")
	suite.NoError(err)
	err = suite.Database.Init()
	suite.NoError(err)
}

func (suite *MongoTestSuite) TearDownSuite() {
	err := suite.Database.Close()
	suite.NoError(err)
}

func TestMongo(t *testing.T) {
	if os.Getenv("MONGO_URI") == "" {
		t.Skip("MONGO_URI is not set")
	}
	suite.Run(t, new(MongoTestSuite))
}
