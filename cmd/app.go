/*
Copyright 2022

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/penny-vault/import-mse/mse"
	"github.com/penny-vault/import-mse/store"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/viper"
)

// app bundles the pieces every command is built from.
type app struct {
	store   store.Store
	fetcher *mse.Fetcher
	markers *mse.FileMarkers
}

func newApp(ctx context.Context) (*app, error) {
	db, err := store.Open(ctx, viper.GetString("database.url"))
	if err != nil {
		log.Error().Err(err).Str("DatabaseURL", redact(viper.GetString("database.url"))).Msg("could not open database")
		return nil, err
	}

	fetcher := mse.NewFetcher(mse.SourceConfig{
		BaseURL:       viper.GetString("source.base_url"),
		DirectoryPath: viper.GetString("source.directory_path"),
		WindowDays:    viper.GetInt("source.window_days"),
		RateLimit:     viper.GetInt("source.rate_limit"),
		Timeout:       viper.GetDuration("source.timeout"),
		UserAgent:     viper.GetString("source.user_agent"),
	})

	return &app{
		store:   db,
		fetcher: fetcher,
		markers: mse.NewFileMarkers(viper.GetString("marker.file")),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing database")
	}
}

func (a *app) directory() *mse.Directory {
	return mse.NewDirectory(a.fetcher, a.store)
}

func (a *app) coordinator() *mse.Coordinator {
	c := mse.NewCoordinator(mse.HarvestConfig{
		Workers:        viper.GetInt("harvest.workers"),
		BackfillDays:   viper.GetInt("harvest.backfill_days"),
		PreciseMarkers: viper.GetBool("harvest.precise_markers"),
	}, a.fetcher, a.store, a.markers)
	c.Progress = progress()
	return c
}

func (a *app) reconciler() *mse.Reconciler {
	r := mse.NewReconciler(viper.GetInt("harvest.workers"), a.fetcher, a.store, a.markers)
	r.Progress = progress()
	return r
}

func (a *app) pipeline() *mse.Pipeline {
	return &mse.Pipeline{
		Directory:   a.directory(),
		Codes:       a.store,
		Coordinator: a.coordinator(),
		Reconciler:  a.reconciler(),
	}
}

// progress returns a progress bar factory, or nil when bars are disabled.
func progress() mse.ProgressFunc {
	if !viper.GetBool("progress") {
		return nil
	}
	return func(total int) mse.Tracker {
		return progressbar.Default(int64(total))
	}
}

func exportParquet(ctx context.Context, db store.Store, fn string) (int, error) {
	n, err := store.Export(ctx, db, fn)
	if err != nil {
		log.Error().Err(err).Str("FileName", fn).Msg("parquet export failed")
		return 0, err
	}
	return n, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// redact hides credentials in a postgres URL before it is logged.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
