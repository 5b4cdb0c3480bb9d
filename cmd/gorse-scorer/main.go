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
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/gorse-io/scorer/base/log"
	"github.com/gorse-io/scorer/config"
	"github.com/gorse-io/scorer/dataset"
	"github.com/gorse-io/scorer/engine"
	"github.com/gorse-io/scorer/storage/data"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Build-time variables overridden via ldflags.
var (
	Version   = "unknown-version"
	GitCommit = "unknown-commit"
	BuildTime = "unknown-buildtime"
)

func buildInfo() string {
	var buildInfo string
	buildInfo += fmt.Sprintln("Version:\t", Version)
	buildInfo += fmt.Sprintln("Go version:\t", runtime.Version())
	buildInfo += fmt.Sprintln("Git commit:\t", GitCommit)
	buildInfo += fmt.Sprintln("Built:\t\t", BuildTime)
	buildInfo += fmt.Sprintf("OS/Arch:\t %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return buildInfo
}

var rootCommand = &cobra.Command{
	Use:   "gorse-scorer",
	Short: "Score items for users with collaborative filtering, latent factors and ensembles.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.CloseLogger()
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show the version of gorse-scorer",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(buildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.AddCommand(versionCommand, importCommand, scoreCommand, relatedCommand)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCommand.ExecuteContext(ctx); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return conf, nil
}

func openDatabase(conf *config.Config) (data.Database, error) {
	database, err := data.Open(conf.Database.DataStore, conf.Database.TablePrefix)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to connect to %s", log.RedactDBURL(conf.Database.DataStore))
	}
	if err = database.Init(); err != nil {
		return nil, errors.Trace(err)
	}
	return data.WithMetrics(database), nil
}

// loadEngine takes a snapshot of the database and prepares scorers over it.
func loadEngine(cmd *cobra.Command) (*engine.Engine, *config.Config, error) {
	conf, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	database, err := openDatabase(conf)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	defer database.Close()
	var opts []dataset.LoadOption
	if conf.Database.Filter != "" {
		opts = append(opts, dataset.WithFilter(conf.Database.Filter))
	}
	ds, err := dataset.LoadDataset(cmd.Context(), database, opts...)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	e, err := engine.NewEngine(cmd.Context(), conf, ds)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return e, conf, nil
}
