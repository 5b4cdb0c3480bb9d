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
	"io"
	"os"
	"strconv"

	"github.com/gorse-io/scorer/engine"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var scoreCommand = &cobra.Command{
	Use:   "score",
	Short: "Score items for users",
	RunE: func(cmd *cobra.Command, args []string) error {
		modelName, _ := cmd.Flags().GetString("model")
		userIds, _ := cmd.Flags().GetInt64Slice("user")
		items, _ := cmd.Flags().GetInt64Slice("items")
		jobs, _ := cmd.Flags().GetInt("jobs")
		e, _, err := loadEngine(cmd)
		if err != nil {
			return errors.Trace(err)
		}
		scorer, err := e.Scorer(cmd.Context(), modelName)
		if err != nil {
			return errors.Trace(err)
		}
		results, err := engine.ScoreUsers(cmd.Context(), scorer, userIds, items, jobs)
		if err != nil {
			return errors.Trace(err)
		}
		return renderScores(os.Stdout, []string{"user", "item", "score"}, userIds, items, results)
	},
}

var relatedCommand = &cobra.Command{
	Use:   "related",
	Short: "Score items by similarity or association with a reference item",
	RunE: func(cmd *cobra.Command, args []string) error {
		rule, _ := cmd.Flags().GetString("rule")
		reference, _ := cmd.Flags().GetInt64("reference")
		items, _ := cmd.Flags().GetInt64Slice("items")
		e, _, err := loadEngine(cmd)
		if err != nil {
			return errors.Trace(err)
		}
		related, err := e.Related(cmd.Context(), rule)
		if err != nil {
			return errors.Trace(err)
		}
		scores := related(reference, items)
		return renderScores(os.Stdout, []string{"reference", "item", rule}, []int64{reference}, items, []map[int64]float64{scores})
	},
}

func init() {
	scoreCommand.Flags().StringP("model", "m", engine.ItemItem, "scorer to use")
	scoreCommand.Flags().Int64SliceP("user", "u", nil, "users to score items for")
	scoreCommand.Flags().Int64SliceP("items", "i", nil, "items to score")
	scoreCommand.Flags().IntP("jobs", "j", 1, "number of users scored at once")
	_ = scoreCommand.MarkFlagRequired("user")
	_ = scoreCommand.MarkFlagRequired("items")

	relatedCommand.Flags().String("rule", engine.Lift, "relation (item-item, lift or basic)")
	relatedCommand.Flags().Int64P("reference", "r", 0, "reference item")
	relatedCommand.Flags().Int64SliceP("items", "i", nil, "items to score")
	_ = relatedCommand.MarkFlagRequired("reference")
	_ = relatedCommand.MarkFlagRequired("items")
}

// renderScores prints a row per (key, item). Items that can not be scored are marked "-".
func renderScores(w io.Writer, header []string, keys, items []int64, results []map[int64]float64) error {
	table := tablewriter.NewWriter(w)
	table.Header(lo.ToAnySlice(header)...)
	for i, key := range keys {
		for _, itemId := range items {
			value := "-"
			if score, ok := results[i][itemId]; ok {
				value = strconv.FormatFloat(score, 'f', 4, 64)
			}
			if err := table.Append([]string{strconv.FormatInt(key, 10), strconv.FormatInt(itemId, 10), value}); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return errors.Trace(table.Render())
}
