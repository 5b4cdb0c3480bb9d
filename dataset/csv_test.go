// Copyright 2025 gorse Project Authors
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

package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorse-io/scorer/storage/data"
	"github.com/stretchr/testify/assert"
)

func TestReadLines(t *testing.T) {
	text := "1,\"a,b\",c\n2,\"multi\nline\",\"say \"\"hi\"\"\"\n3::x::y\n"
	var lines [][]string
	err := ReadLines(strings.NewReader(text), ",", func(_ int, fields []string) (bool, error) {
		lines = append(lines, fields)
		return true, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, [][]string{
		{"1", "a,b", "c"},
		{"2", "multi\nline", "say \"hi\""},
		{"3::x::y"},
	}, lines)

	lines = nil
	err = ReadLines(strings.NewReader("1::2::3.5\n4::5::1\n"), "::", func(_ int, fields []string) (bool, error) {
		lines = append(lines, fields)
		return false, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2", "3.5"}}, lines)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("964982703")
	assert.NoError(t, err)
	assert.Equal(t, time.Unix(964982703, 0).UTC(), ts)
	ts, err = ParseTimestamp("2020-01-02")
	assert.NoError(t, err)
	assert.Equal(t, 2020, ts.Year())
	ts, err = ParseTimestamp("")
	assert.NoError(t, err)
	assert.True(t, ts.IsZero())
	_, err = ParseTimestamp("not a time")
	assert.Error(t, err)
}

func TestLoadRatingsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratings.csv")
	err := os.WriteFile(path, []byte("userId,movieId,rating,timestamp\n1,31,2.5,1260759144\n1,1029,3.0,1260759179\n\n2,10,4.0\n"), 0644)
	assert.NoError(t, err)
	ratings, err := LoadRatingsCSV(path, MovieLensCSV)
	assert.NoError(t, err)
	assert.Equal(t, []data.Rating{
		{UserId: 1, ItemId: 31, Value: 2.5, Timestamp: time.Unix(1260759144, 0).UTC()},
		{UserId: 1, ItemId: 1029, Value: 3, Timestamp: time.Unix(1260759179, 0).UTC()},
		{UserId: 2, ItemId: 10, Value: 4},
	}, ratings)

	path = filepath.Join(t.TempDir(), "ratings.dat")
	err = os.WriteFile(path, []byte("1::1193::5::978300760\n"), 0644)
	assert.NoError(t, err)
	ratings, err = LoadRatingsCSV(path, MovieLensDat)
	assert.NoError(t, err)
	assert.Len(t, ratings, 1)
	assert.Equal(t, int64(1193), ratings[0].ItemId)

	path = filepath.Join(t.TempDir(), "broken.csv")
	err = os.WriteFile(path, []byte("1,x,2.5\n"), 0644)
	assert.NoError(t, err)
	_, err = LoadRatingsCSV(path, CSVFormat{Sep: ","})
	assert.Error(t, err)
}

func TestLoadTagsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.csv")
	err := os.WriteFile(path, []byte("userId,movieId,tag,timestamp\n15,339,sandra 'boring' bullock,1138537770\n15,1955,\"dentist, teeth\",1193435061\n"), 0644)
	assert.NoError(t, err)
	tags, err := LoadTagsCSV(path, MovieLensCSV)
	assert.NoError(t, err)
	assert.Equal(t, []data.Tag{
		{ItemId: 339, Tag: "sandra 'boring' bullock"},
		{ItemId: 1955, Tag: "dentist, teeth"},
	}, tags)
}
