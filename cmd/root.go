/*
Copyright © 2023 sanix-darker <s4nixd@gmail.com>
*/

package cmd

import (
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sanix-darker/hgping/internal/config"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var debugFlag bool

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hgping",
	Short: "Commit review-system telemetry for mercurial pushes.",
	Long: `Classify which code-review system approved a mercurial changeset,
compute its patch diffstat, and send the result as a telemetry ping.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		if debugFlag || os.Getenv("DEBUG") != "" {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "print debugging messages about the tool's progress")
}
