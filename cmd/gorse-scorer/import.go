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

package main

import (
	"context"
	"io"
	"os"

	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/dataset"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importCommand = &cobra.Command{
	Use:   "import",
	Short: "Import ratings and tags from CSV files",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return errors.Trace(err)
		}
		database, err := openDatabase(conf)
		if err != nil {
			return errors.Trace(err)
		}
		defer database.Close()
		sep, _ := cmd.Flags().GetString("sep")
		header, _ := cmd.Flags().GetBool("header")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		format := dataset.CSVFormat{Sep: sep, Header: header}
		if path, _ := cmd.Flags().GetString("ratings"); path != "" {
			n, err := importFile(cmd.Context(), path, "importing ratings", batchSize,
				func(r io.Reader, handler func(data.Rating) error) error {
					return dataset.ReadRatings(r, format, handler)
				}, database.BatchInsertRatings)
			if err != nil {
				return errors.Trace(err)
			}
			log.Logger().Info("import ratings complete", zap.String("path", path), zap.Int("n_ratings", n))
		}
		if path, _ := cmd.Flags().GetString("tags"); path != "" {
			n, err := importFile(cmd.Context(), path, "importing tags", batchSize,
				func(r io.Reader, handler func(data.Tag) error) error {
					return dataset.ReadTags(r, format, handler)
				}, database.BatchInsertTags)
			if err != nil {
				return errors.Trace(err)
			}
			log.Logger().Info("import tags complete", zap.String("path", path), zap.Int("n_tags", n))
		}
		return nil
	},
}

func init() {
	importCommand.Flags().String("ratings", "", "CSV file of user,item,rating[,timestamp]")
	importCommand.Flags().String("tags", "", "CSV file of user,item,tag[,timestamp]")
	importCommand.Flags().String("sep", dataset.MovieLensCSV.Sep, "field separator")
	importCommand.Flags().Bool("header", dataset.MovieLensCSV.Header, "skip the first line")
	importCommand.Flags().Int("batch-size", 1000, "number of records inserted at once")
}

// importFile reads records from a file and inserts them in batches. A progress bar
// tracks bytes read.
func importFile[T any](
	ctx context.Context,
	path, description string,
	batchSize int,
	read func(io.Reader, func(T) error) error,
	insert func(context.Context, []T) error,
) (int, error) {
	if batchSize <= 0 {
		return 0, errors.NotValidf("batch size %d", batchSize)
	}
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return 0, errors.Trace(err)
	}
	bar := progressbar.DefaultBytes(stat.Size(), description)
	reader := progressbar.NewReader(file, bar)
	var count int
	batch := make([]T, 0, batchSize)
	err = read(&reader, func(record T) error {
		batch = append(batch, record)
		if len(batch) < batchSize {
			return nil
		}
		if err := insert(ctx, batch); err != nil {
			return errors.Trace(err)
		}
		count += len(batch)
		batch = batch[:0]
		return nil
	})
	if err != nil {
		return count, errors.Trace(err)
	}
	if len(batch) > 0 {
		if err = insert(ctx, batch); err != nil {
			return count, errors.Trace(err)
		}
		count += len(batch)
	}
	return count, errors.Trace(bar.Finish())
}
