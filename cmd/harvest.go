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
	"strings"

	"github.com/penny-vault/import-mse/mse"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest [CODE...]",
	Short: "Fetch the missing history of known instruments",
	Long: `Fetch every day between each instrument's newest stored day and today.
Instruments without stored data are backfilled. When codes are given only
those instruments are harvested.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		codes := make([]string, 0, len(args))
		for _, arg := range args {
			if !mse.IsInstrumentCode(arg) {
				log.Warn().Str("Code", arg).Msg("skipping invalid instrument code")
				continue
			}
			codes = append(codes, strings.ToUpper(arg))
		}

		if len(args) == 0 {
			codes, err = a.store.KnownCodes(ctx)
			if err != nil {
				return err
			}
		}

		if limit := viper.GetInt("limit"); limit > 0 && limit < len(codes) {
			codes = codes[:limit]
		}
		if len(codes) == 0 {
			log.Warn().Msg("no instruments to harvest, run the codes command first")
			return nil
		}

		a.coordinator().Run(ctx, codes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().Int("backfill-days", mse.DefaultBackfillDays, "days fetched for instruments without stored data")
	viper.BindPFlag("harvest.backfill_days", harvestCmd.Flags().Lookup("backfill-days"))

	harvestCmd.Flags().Bool("precise-markers", false, "use the newest fetched day as the as-of marker instead of today")
	viper.BindPFlag("harvest.precise_markers", harvestCmd.Flags().Lookup("precise-markers"))
}
