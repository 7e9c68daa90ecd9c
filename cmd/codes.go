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
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Sync the instrument directory into the publishers table",
	Long: `Download the list of instrument codes from the exchange and add the new ones
to the publishers table. Known codes are never removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.directory().Sync(ctx); err != nil {
			log.Warn().Err(err).Msg("instrument directory left unchanged")
		}

		codes, err := a.store.KnownCodes(ctx)
		if err != nil {
			return err
		}

		list, _ := cmd.Flags().GetBool("list")
		if list {
			for _, code := range codes {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
		}
		log.Info().Int("Known", len(codes)).Msg("instrument codes")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(codesCmd)
	codesCmd.Flags().Bool("list", false, "print the known codes")
}
