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
	"github.com/penny-vault/import-mse/mse"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync codes, harvest every instrument and optionally reconcile",
	Long: `Run the stages one after the other: refresh the instrument directory,
harvest the missing history of every known instrument and, with --reconcile,
re-fetch the days after each as-of marker. This is what import-mse does when
no subcommand is given.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.pipeline().Run(ctx, mse.PipelineOptions{
		SkipDirectory: viper.GetBool("skip_directory"),
		Reconcile:     viper.GetBool("reconcile"),
		Limit:         viper.GetInt("limit"),
	})
	if err != nil {
		log.Error().Err(err).Msg("pipeline did not finish")
		return err
	}

	log.Info().
		Int("CodesAdded", result.CodesAdded).
		Int("Harvested", result.Harvest.Succeeded).
		Int("Failed", result.Harvest.Failed).
		Msg("pipeline finished")

	if fn := viper.GetString("parquet_file"); fn != "" {
		if _, err := exportParquet(ctx, a.store, fn); err != nil {
			return err
		}
	}
	return nil
}
