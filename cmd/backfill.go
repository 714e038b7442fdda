/*
Copyright © 2023 sanix-darker <s4nixd@gmail.com>
*/

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func init() {
	var noSend bool

	backfillCmd := &cobra.Command{
		Use:   "backfill <repo-url> <starting-push-id> <ending-push-id>",
		Short: "Process repo pushes by pushlog ID.",
		Long: `Walk the repository pushlog from starting-push-id (exclusive) to
ending-push-id (inclusive) and send one telemetry ping per changeset.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoURL := args[0]
			startID, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("starting-push-id must be an integer: %w", err)
			}
			endID, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("ending-push-id must be an integer: %w", err)
			}
			if !noSend {
				if err := cfg.ValidateTMO(); err != nil {
					return err
				}
			}

			fmt.Printf("Checking repo %s\n", repoURL)
			fmt.Printf("Fetching pushes %d to %d\n", startID, endID)

			spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			spin.Start()
			defer spin.Stop()

			err = newPinger().SendPingsByPushID(cmd.Context(), repoURL, startID, endID, noSend, func(status string) {
				spin.Suffix = status
			})
			spin.Stop()
			if err != nil {
				return err
			}

			fmt.Println("Done.")
			return nil
		},
	}

	backfillCmd.Flags().BoolVar(&noSend, "no-send", false, "for testing: do not send ping data")
	rootCmd.AddCommand(backfillCmd)
}
