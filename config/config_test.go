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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, name, text string) string {
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(text), 0644)
	assert.NoError(t, err)
	return path
}

func TestLoadDefault(t *testing.T) {
	config, err := LoadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
	assert.Equal(t, 20, config.ItemItem.NeighborhoodSize)
	assert.Equal(t, 30, config.UserUser.NeighborhoodSize)
	assert.Equal(t, 2, config.UserUser.MinNeighbors)
	assert.Equal(t, 5e-5, config.Hybrid.LearningRate)
	assert.Equal(t, 100, config.Hybrid.Epochs)
	assert.Equal(t, 0.5, config.Hybrid.BlendWeight)
	assert.Equal(t, 5.0, config.Baseline.Damping)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[database]
data_store = "redis://127.0.0.1:6379/0"
table_prefix = "gorse_"
filter = "rating >= 1"

[item_item]
neighborhood_size = 10

[user_user]
cache_ttl = "5m"

[svd]
feature_count = 25

[hybrid]
scorers = ["user-user", "tfidf"]
blend_weight = 0.25
`)
	config, err := LoadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "redis://127.0.0.1:6379/0", config.Database.DataStore)
	assert.Equal(t, "gorse_", config.Database.TablePrefix)
	assert.Equal(t, "rating >= 1", config.Database.Filter)
	assert.Equal(t, 10, config.ItemItem.NeighborhoodSize)
	assert.Equal(t, 5*time.Minute, config.UserUser.CacheTTL)
	assert.Equal(t, 30, config.UserUser.NeighborhoodSize)
	assert.Equal(t, 25, config.SVD.FeatureCount)
	assert.Equal(t, []string{"user-user", "tfidf"}, config.Hybrid.Scorers)
	assert.Equal(t, 0.25, config.Hybrid.BlendWeight)
	assert.Equal(t, 100, config.Hybrid.Epochs)
	assert.Equal(t, 0.8, config.Hybrid.TrainFraction)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
content:
  profile: weighted
baseline:
  damping: 0
`)
	config, err := LoadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "weighted", config.Content.Profile)
	assert.Zero(t, config.Baseline.Damping)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GORSE_SCORER_DATABASE_DATA_STORE", "mysql://root@tcp(127.0.0.1:3306)/gorse")
	t.Setenv("GORSE_SCORER_HYBRID_EPOCHS", "7")
	config, err := LoadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, "mysql://root@tcp(127.0.0.1:3306)/gorse", config.Database.DataStore)
	assert.Equal(t, 7, config.Hybrid.Epochs)
}

func TestValidate(t *testing.T) {
	config := GetDefaultConfig()
	config.Hybrid.BlendWeight = 1.5
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))

	config = GetDefaultConfig()
	config.Database.DataStore = "unknown://"
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))

	config = GetDefaultConfig()
	config.Hybrid.Scorers = []string{"unknown"}
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))

	config = GetDefaultConfig()
	config.Hybrid.TrainFraction = 1
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))

	config = GetDefaultConfig()
	config.SVD.FeatureCount = -1
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))

	path := writeConfig(t, "config.toml", "[user_user]\nneighborhood_size = 0\n")
	_, err := LoadConfig(path)
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
