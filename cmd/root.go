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
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/penny-vault/import-mse/mse"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "import-mse",
	Short: "Download daily trading history from the Macedonian Stock Exchange",
	Long: `Download daily trading history from the Macedonian Stock Exchange and merge it
into the stock_data table. Only the days missing since the last run are fetched.

Without a subcommand the instrument directory is synced and every known
instrument is harvested. Reconciliation only runs when --reconcile is given.`,
	RunE: runPipeline,
}

// Execute runs the command line and exits non-zero when a command fails.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLog)

	setDefaults()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is import-mse.toml)")
	rootCmd.PersistentFlags().Bool("log.json", false, "print logs as json to stderr")
	viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log.json"))

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().StringP("database-url", "d", "import-mse.db", "postgres DSN or path to a sqlite database")
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))

	rootCmd.PersistentFlags().Int("mse-rate-limit", 5, "exchange rate limit (requests per second, 0 disables)")
	viper.BindPFlag("source.rate_limit", rootCmd.PersistentFlags().Lookup("mse-rate-limit"))

	rootCmd.PersistentFlags().IntP("workers", "w", mse.DefaultWorkers, "number of instruments processed in parallel")
	viper.BindPFlag("harvest.workers", rootCmd.PersistentFlags().Lookup("workers"))

	rootCmd.PersistentFlags().String("marker-file", "last_dates.json", "as-of marker file shared by harvest and reconcile")
	viper.BindPFlag("marker.file", rootCmd.PersistentFlags().Lookup("marker-file"))

	rootCmd.PersistentFlags().Bool("progress", true, "show a progress bar")
	viper.BindPFlag("progress", rootCmd.PersistentFlags().Lookup("progress"))

	rootCmd.PersistentFlags().Uint32P("limit", "l", 0, "limit harvest to the first N instruments")
	viper.BindPFlag("limit", rootCmd.PersistentFlags().Lookup("limit"))

	rootCmd.PersistentFlags().String("parquet-file", "", "export the stored records to this parquet file")
	viper.BindPFlag("parquet_file", rootCmd.PersistentFlags().Lookup("parquet-file"))

	rootCmd.PersistentFlags().Bool("reconcile", false, "run the reconciliation pass after harvesting")
	viper.BindPFlag("reconcile", rootCmd.PersistentFlags().Lookup("reconcile"))

	rootCmd.PersistentFlags().Bool("skip-directory", false, "do not refresh the instrument directory")
	viper.BindPFlag("skip_directory", rootCmd.PersistentFlags().Lookup("skip-directory"))
}

func setDefaults() {
	viper.SetDefault("source.base_url", mse.DefaultBaseURL)
	viper.SetDefault("source.directory_path", mse.DefaultDirectoryPath)
	viper.SetDefault("source.window_days", mse.DefaultWindowDays)
	viper.SetDefault("source.timeout", "30s")
	viper.SetDefault("source.user_agent", "import-mse")
	viper.SetDefault("harvest.backfill_days", mse.DefaultBackfillDays)
	viper.SetDefault("harvest.precise_markers", false)
}

func initLog() {
	if !viper.GetBool("log.json") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(viper.GetString("log.level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// initConfig layers the config file, .env and environment over the
// defaults. Environment variables use the MSE_ prefix with dots replaced by
// underscores, e.g. MSE_DATABASE_URL.
func initConfig() {
	// a missing .env is normal outside of development
	_ = godotenv.Load()

	viper.SetEnvPrefix("MSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("import-mse")
		viper.SetConfigType("toml")
		for _, dir := range configDirs() {
			viper.AddConfigPath(dir)
		}
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		log.Debug().Str("ConfigFile", viper.ConfigFileUsed()).Msg("loaded config file")
	case errors.As(err, &notFound):
		log.Debug().Msg("no config file found, using flags and environment")
	default:
		log.Error().Err(err).Msg("error reading config file")
	}
}

// configDirs lists where import-mse.toml is searched, most general first.
func configDirs() []string {
	dirs := []string{"/etc/import-mse/"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".import-mse"))
	}
	return append(dirs, ".")
}
