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

import "context"

// NoDatabase means that no database is configured. Every call fails with ErrNoDatabase.
type NoDatabase struct{}

func (NoDatabase) Init() error {
	return ErrNoDatabase
}

func (NoDatabase) Ping() error {
	return ErrNoDatabase
}

func (NoDatabase) Close() error {
	return ErrNoDatabase
}

func (NoDatabase) Purge() error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertRatings(_ context.Context, _ []Rating) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertTags(_ context.Context, _ []Tag) error {
	return ErrNoDatabase
}

func (NoDatabase) GetUserRatings(_ context.Context, _ int64) ([]Rating, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetItemRatings(_ context.Context, _ int64) ([]Rating, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetUserIds(_ context.Context) ([]int64, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetItemIds(_ context.Context) ([]int64, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetRatingStream(_ context.Context, _ int) (chan []Rating, chan error) {
	ratingChan := make(chan []Rating)
	errChan := make(chan error, 1)
	close(ratingChan)
	errChan <- ErrNoDatabase
	close(errChan)
	return ratingChan, errChan
}

func (NoDatabase) GetItemTags(_ context.Context, _ int64) ([]string, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetTagStream(_ context.Context, _ int) (chan []Tag, chan error) {
	tagChan := make(chan []Tag)
	errChan := make(chan error, 1)
	close(tagChan)
	errChan <- ErrNoDatabase
	close(errChan)
	return tagChan, errChan
}
