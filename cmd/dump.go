/*
Copyright © 2023 sanix-darker <s4nixd@gmail.com>
*/

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/sanix-darker/hgping/internal/hgmo"
)

func init() {
	var targetRepo string
	var pretty bool
	var copyToClipboard bool

	dumpCmd := &cobra.Command{
		Use:   "dump <node-id>",
		Short: "Dump the commit telemetry JSON for a mercurial changeset.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node := args[0]
			repo := targetRepo
			if repo == "" {
				repo = cfg.TargetRepo
			}

			payload, err := newPinger().PayloadForChangeset(cmd.Context(), node, repo)
			if err != nil {
				if errors.Is(err, hgmo.ErrNoSuchChangeset) {
					return fmt.Errorf("changeset %s does not exist in repository %s", node, repo)
				}
				return err
			}

			body, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}

			if copyToClipboard {
				if err := clipboard.WriteAll(string(body)); err != nil {
					fmt.Fprintf(os.Stderr, "could not copy to clipboard: %v\n", err)
				}
			}

			if pretty {
				md := fmt.Sprintf(
					"# %s\n\n- review system: **%s**\n- repository: %s\n\n```json\n%s\n```\n",
					node, payload.ReviewSystemUsed, repo, body,
				)
				fmt.Print(string(markdown.Render(md, 100, 0)))
				return nil
			}

			fmt.Println(string(body))
			return nil
		},
	}

	dumpCmd.Flags().StringVar(&targetRepo, "target-repo", "", "URL of the repository where the changeset can be found")
	dumpCmd.Flags().BoolVar(&pretty, "pretty", false, "render the result for the terminal instead of plain JSON")
	dumpCmd.Flags().BoolVar(&copyToClipboard, "copy", false, "copy the ping JSON to the clipboard")
	rootCmd.AddCommand(dumpCmd)
}
