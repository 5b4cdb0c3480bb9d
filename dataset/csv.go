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
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
)

// CSVFormat describes a delimited file. Sep may be longer than one character, such as
// "::" in the old MovieLens releases.
type CSVFormat struct {
	Sep    string
	Header bool
}

var (
	MovieLensCSV = CSVFormat{Sep: ",", Header: true}
	MovieLensDat = CSVFormat{Sep: "::", Header: false}
)

// ReadLines parses fields of each line. Fields may be quoted with double quotes and a
// quoted field may span lines. handler returns false to stop reading.
func ReadLines(r io.Reader, sep string, handler func(lineNumber int, fields []string) (bool, error)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var (
		lineNumber int
		fields     []string
		builder    strings.Builder
		quoted     bool
	)
	for sc.Scan() {
		line := sc.Text()
		if quoted {
			builder.WriteString("\n")
		}
		for i := 0; i < len(line); i++ {
			switch {
			case !quoted && strings.HasPrefix(line[i:], sep):
				fields = append(fields, builder.String())
				builder.Reset()
				i += len(sep) - 1
			case line[i] == '"' && quoted:
				if i+1 < len(line) && line[i+1] == '"' {
					// escaped quote
					builder.WriteByte('"')
					i++
				} else {
					quoted = false
				}
			case line[i] == '"':
				quoted = true
			default:
				builder.WriteByte(line[i])
			}
		}
		if !quoted {
			fields = append(fields, builder.String())
			builder.Reset()
			next, err := handler(lineNumber, fields)
			if err != nil || !next {
				return err
			}
			fields = nil
		}
		lineNumber++
	}
	if err := sc.Err(); err != nil {
		return errors.Trace(err)
	}
	if quoted {
		return errors.NotValidf("unterminated quote at line %d", lineNumber)
	}
	return nil
}

// ParseTimestamp accepts unix seconds or any layout known to dateparse.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, errors.Trace(err)
	}
	return t, nil
}

func parseId(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.NotValidf("id %q", s)
	}
	return id, nil
}

// ReadRatings reads "user,item,rating[,timestamp]" lines.
func ReadRatings(r io.Reader, format CSVFormat, handler func(data.Rating) error) error {
	return ReadLines(r, format.Sep, func(lineNumber int, fields []string) (bool, error) {
		if format.Header && lineNumber == 0 {
			return true, nil
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			return true, nil
		}
		if len(fields) < 3 {
			return false, errors.NotValidf("line %d: expect at least 3 fields but got %d", lineNumber+1, len(fields))
		}
		var (
			rating data.Rating
			err    error
		)
		if rating.UserId, err = parseId(fields[0]); err != nil {
			return false, errors.Annotatef(err, "line %d", lineNumber+1)
		}
		if rating.ItemId, err = parseId(fields[1]); err != nil {
			return false, errors.Annotatef(err, "line %d", lineNumber+1)
		}
		if rating.Value, err = strconv.ParseFloat(strings.TrimSpace(fields[2]), 64); err != nil {
			return false, errors.NotValidf("line %d: rating %q", lineNumber+1, fields[2])
		}
		if len(fields) > 3 {
			if rating.Timestamp, err = ParseTimestamp(fields[3]); err != nil {
				return false, errors.Annotatef(err, "line %d", lineNumber+1)
			}
		}
		return true, errors.Trace(handler(rating))
	})
}

// ReadTags reads "user,item,tag[,timestamp]" lines. The user column is ignored.
func ReadTags(r io.Reader, format CSVFormat, handler func(data.Tag) error) error {
	return ReadLines(r, format.Sep, func(lineNumber int, fields []string) (bool, error) {
		if format.Header && lineNumber == 0 {
			return true, nil
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			return true, nil
		}
		if len(fields) < 3 {
			return false, errors.NotValidf("line %d: expect at least 3 fields but got %d", lineNumber+1, len(fields))
		}
		itemId, err := parseId(fields[1])
		if err != nil {
			return false, errors.Annotatef(err, "line %d", lineNumber+1)
		}
		return true, errors.Trace(handler(data.Tag{ItemId: itemId, Tag: fields[2]}))
	})
}

// LoadRatingsCSV reads all ratings of a file.
func LoadRatingsCSV(path string, format CSVFormat) ([]data.Rating, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	var ratings []data.Rating
	err = ReadRatings(file, format, func(rating data.Rating) error {
		ratings = append(ratings, rating)
		return nil
	})
	return ratings, errors.Trace(err)
}

// LoadTagsCSV reads all tag applications of a file.
func LoadTagsCSV(path string, format CSVFormat) ([]data.Tag, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	var tags []data.Tag
	err = ReadTags(file, format, func(tag data.Tag) error {
		tags = append(tags, tag)
		return nil
	})
	return tags, errors.Trace(err)
}
