// Copyright 2026 gorse Project Authors
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

// Package content scores items by the cosine similarity between tag vectors of items and
// profiles of users.
package content

import (
	"context"
	"math"
	"time"

	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/common/sparse"
	"github.com/gorse-io/scorer/model"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"modernc.org/strutil"
)

const (
	batchSize        = 1024
	DefaultThreshold = 3.5
)

// TFIDFModel holds unit-length TF-IDF tag vectors of tagged items.
type TFIDFModel struct {
	vectors map[int64]sparse.Vector[string]
}

// BuildTFIDF counts tag applications per item as term frequencies and weights them by
// ln N - ln df, where N is the number of tagged items and df is the number of items
// with the tag.
func BuildTFIDF(ctx context.Context, tags data.TagSource) (*TFIDFModel, error) {
	defer model.ObserveBuild("tfidf", time.Now())
	vectors := make(map[int64]sparse.Vector[string])
	docFreq := make(map[string]float64)
	pool := strutil.NewPool()
	tagChan, errChan := tags.GetTagStream(ctx, batchSize)
	for batch := range tagChan {
		for _, tag := range batch {
			tag.Tag = pool.Align(tag.Tag)
			vector, ok := vectors[tag.ItemId]
			if !ok {
				vector = make(sparse.Vector[string])
				vectors[tag.ItemId] = vector
			}
			if _, exist := vector[tag.Tag]; !exist {
				docFreq[tag.Tag]++
			}
			vector[tag.Tag]++
		}
	}
	if err := <-errChan; err != nil {
		return nil, errors.Trace(err)
	}
	logN := math.Log(float64(len(vectors)))
	for itemId, vector := range vectors {
		for tag := range vector {
			vector[tag] *= logN - math.Log(docFreq[tag])
		}
		// a tag applied to every item carries no weight
		vectors[itemId] = sparse.Normalize(vector)
	}
	log.Logger().Info("build tf-idf model",
		zap.Int("n_items", len(vectors)),
		zap.Int("n_tags", len(docFreq)))
	return &TFIDFModel{vectors: vectors}, nil
}

func (m *TFIDFModel) ItemCount() int {
	return len(m.vectors)
}

// ItemVector returns the tag vector of an item, nil for untagged items.
func (m *TFIDFModel) ItemVector(itemId int64) sparse.Vector[string] {
	return m.vectors[itemId]
}

// ProfileBuilder summarizes ratings of a user as a tag vector.
type ProfileBuilder interface {
	Profile(ratings []data.Rating) sparse.Vector[string]
}

// ThresholdProfile sums vectors of items rated at least Threshold.
type ThresholdProfile struct {
	Model     *TFIDFModel
	Threshold float64
}

func NewThresholdProfile(m *TFIDFModel, threshold float64) *ThresholdProfile {
	return &ThresholdProfile{Model: m, Threshold: threshold}
}

func (p *ThresholdProfile) Profile(ratings []data.Rating) sparse.Vector[string] {
	profile := make(sparse.Vector[string])
	for _, r := range ratings {
		if r.Value >= p.Threshold {
			sparse.AddScaled(profile, p.Model.ItemVector(r.ItemId), 1)
		}
	}
	return profile
}

// WeightedProfile sums vectors of rated items weighted by the rating minus the mean
// rating of the user.
type WeightedProfile struct {
	Model *TFIDFModel
}

func NewWeightedProfile(m *TFIDFModel) *WeightedProfile {
	return &WeightedProfile{Model: m}
}

func (p *WeightedProfile) Profile(ratings []data.Rating) sparse.Vector[string] {
	profile := make(sparse.Vector[string])
	if len(ratings) == 0 {
		return profile
	}
	var sum float64
	for _, r := range ratings {
		sum += r.Value
	}
	mean := sum / float64(len(ratings))
	for _, r := range ratings {
		sparse.AddScaled(profile, p.Model.ItemVector(r.ItemId), r.Value-mean)
	}
	return profile
}

type Scorer struct {
	model   *TFIDFModel
	source  data.RatingSource
	profile ProfileBuilder
}

func NewScorer(m *TFIDFModel, source data.RatingSource, profile ProfileBuilder) *Scorer {
	return &Scorer{model: m, source: source, profile: profile}
}

// Score items by cosine similarity between the user profile and item vectors. Items are
// omitted if either vector is zero.
func (s *Scorer) Score(ctx context.Context, userId int64, items []int64) (map[int64]float64, error) {
	ratings, err := s.source.GetUserRatings(ctx, userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scores := make(map[int64]float64)
	profile := s.profile.Profile(ratings)
	norm := sparse.Norm(profile)
	for _, itemId := range items {
		vector := s.model.ItemVector(itemId)
		if sim, ok := sparse.CosineWithNorms(profile, vector, norm, sparse.Norm(vector)); ok {
			scores[itemId] = sim
		}
	}
	return scores, nil
}
