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
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/scorer/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const EnvPrefix = "GORSE_SCORER"

// Config is the configuration for scorers.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	ItemItem ItemItemConfig `mapstructure:"item_item"`
	UserUser UserUserConfig `mapstructure:"user_user"`
	SVD      SVDConfig      `mapstructure:"svd"`
	Baseline BaselineConfig `mapstructure:"baseline"`
	Hybrid   HybridConfig   `mapstructure:"hybrid"`
	Content  ContentConfig  `mapstructure:"content"`
}

// DatabaseConfig is the configuration for the rating storage.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
	// Filter is an expression applied to every rating when the snapshot is loaded.
	Filter string `mapstructure:"filter"`
}

type ItemItemConfig struct {
	NeighborhoodSize int `mapstructure:"neighborhood_size" validate:"gt=0"`
}

type UserUserConfig struct {
	NeighborhoodSize int           `mapstructure:"neighborhood_size" validate:"gt=0"`
	MinNeighbors     int           `mapstructure:"min_neighbors" validate:"gt=0"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

type SVDConfig struct {
	// FeatureCount is the number of latent features to keep, 0 keeps all.
	FeatureCount int `mapstructure:"feature_count" validate:"gte=0"`
}

type BaselineConfig struct {
	Damping float64 `mapstructure:"damping" validate:"gte=0"`
}

type HybridConfig struct {
	Scorers       []string `mapstructure:"scorers" validate:"dive,oneof=item-item user-user svd item-mean tfidf"`
	LearningRate  float64  `mapstructure:"learning_rate" validate:"gt=0"`
	Epochs        int      `mapstructure:"epochs" validate:"gt=0"`
	// TrainFraction of ratings builds the base scorers, the rest fits the combiner.
	TrainFraction float64  `mapstructure:"train_fraction" validate:"gt=0,lt=1"`
	Seed          int64    `mapstructure:"seed"`
	Jobs          int      `mapstructure:"jobs" validate:"gt=0"`
	BlendLeft     string   `mapstructure:"blend_left" validate:"oneof=item-item user-user svd item-mean tfidf"`
	BlendRight    string   `mapstructure:"blend_right" validate:"oneof=item-item user-user svd item-mean tfidf"`
	BlendWeight   float64  `mapstructure:"blend_weight" validate:"gte=0,lte=1"`
}

type ContentConfig struct {
	Profile   string  `mapstructure:"profile" validate:"oneof=threshold weighted"`
	Threshold float64 `mapstructure:"threshold"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore: "sqlite://gorse-scorer.db",
		},
		ItemItem: ItemItemConfig{
			NeighborhoodSize: 20,
		},
		UserUser: UserUserConfig{
			NeighborhoodSize: 30,
			MinNeighbors:     2,
		},
		Baseline: BaselineConfig{
			Damping: 5,
		},
		Hybrid: HybridConfig{
			Scorers:       []string{"item-item", "svd"},
			LearningRate:  5e-5,
			Epochs:        100,
			TrainFraction: 0.8,
			Jobs:          1,
			BlendLeft:     "item-item",
			BlendRight:    "svd",
			BlendWeight:   0.5,
		},
		Content: ContentConfig{
			Profile:   "threshold",
			Threshold: 3.5,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [database]
	v.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	v.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	v.SetDefault("database.filter", defaultConfig.Database.Filter)
	// [item_item]
	v.SetDefault("item_item.neighborhood_size", defaultConfig.ItemItem.NeighborhoodSize)
	// [user_user]
	v.SetDefault("user_user.neighborhood_size", defaultConfig.UserUser.NeighborhoodSize)
	v.SetDefault("user_user.min_neighbors", defaultConfig.UserUser.MinNeighbors)
	v.SetDefault("user_user.cache_ttl", defaultConfig.UserUser.CacheTTL)
	// [svd]
	v.SetDefault("svd.feature_count", defaultConfig.SVD.FeatureCount)
	// [baseline]
	v.SetDefault("baseline.damping", defaultConfig.Baseline.Damping)
	// [hybrid]
	v.SetDefault("hybrid.scorers", defaultConfig.Hybrid.Scorers)
	v.SetDefault("hybrid.learning_rate", defaultConfig.Hybrid.LearningRate)
	v.SetDefault("hybrid.epochs", defaultConfig.Hybrid.Epochs)
	v.SetDefault("hybrid.train_fraction", defaultConfig.Hybrid.TrainFraction)
	v.SetDefault("hybrid.seed", defaultConfig.Hybrid.Seed)
	v.SetDefault("hybrid.jobs", defaultConfig.Hybrid.Jobs)
	v.SetDefault("hybrid.blend_left", defaultConfig.Hybrid.BlendLeft)
	v.SetDefault("hybrid.blend_right", defaultConfig.Hybrid.BlendRight)
	v.SetDefault("hybrid.blend_weight", defaultConfig.Hybrid.BlendWeight)
	// [content]
	v.SetDefault("content.profile", defaultConfig.Content.Profile)
	v.SetDefault("content.threshold", defaultConfig.Content.Threshold)
}

// LoadConfig loads configuration from a TOML, YAML or JSON file. Environment variables
// such as GORSE_SCORER_DATABASE_DATA_STORE override values in the file. An empty path
// loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks the configuration and returns a NotValid error on the first violation.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		prefixes := []string{
			storage.MySQLPrefix,
			storage.PostgresPrefix,
			storage.PostgreSQLPrefix,
			storage.MongoPrefix,
			storage.MongoSrvPrefix,
			storage.SQLitePrefix,
			storage.RedisPrefix,
			storage.RedissPrefix,
		}
		return lo.ContainsBy(prefixes, func(prefix string) bool {
			return strings.HasPrefix(fl.Field().String(), prefix)
		})
	}); err != nil {
		return errors.Trace(err)
	}
	if err := validate.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			e := validationErrors[0]
			return errors.NotValidf("%s (%v fails %s %s)", e.Namespace(), e.Value(), e.Tag(), e.Param())
		}
		return errors.Trace(err)
	}
	return nil
}
