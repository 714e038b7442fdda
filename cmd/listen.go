/*
Copyright © 2023 sanix-darker <s4nixd@gmail.com>
*/

package cmd

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sanix-darker/hgping/internal/pulse"
)

func init() {
	var timeout time.Duration
	var noSend bool

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Process all queued mercurial repo change messages.",
		Long: `Drain hgpush messages from the Pulse queue and send one telemetry
ping per pushed head, then exit once the queue stays empty for the
configured timeout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidatePulse(); err != nil {
				return err
			}
			if !noSend {
				if err := cfg.ValidateTMO(); err != nil {
					return err
				}
			}

			password := cfg.PulsePassword
			if password == "" {
				prompt := promptui.Prompt{
					Label: "Pulse password",
					Mask:  '*',
				}
				entered, err := prompt.Run()
				if err != nil {
					return err
				}
				password = entered
			}

			// The DSN is read from SENTRY_DSN; reporting stays off without it.
			if err := sentry.Init(sentry.ClientOptions{}); err == nil {
				defer sentry.Flush(2 * time.Second)
			}

			listener := pulse.NewListener(pulse.Options{
				Host:       cfg.PulseHost,
				Port:       cfg.PulsePort,
				User:       cfg.PulseUser,
				Password:   password,
				Exchange:   cfg.PulseExchange,
				QueueName:  cfg.PulseQueueName,
				RoutingKey: cfg.PulseRoutingKey,
				Timeout:    timeout,
				NoSend:     noSend,
			}, newPinger())

			if err := listener.Run(cmd.Context()); err != nil {
				sentry.CaptureException(err)
				return err
			}
			return nil
		},
	}

	listenCmd.Flags().DurationVar(&timeout, "timeout", time.Second, "how long to wait for additional queue messages")
	listenCmd.Flags().BoolVar(&noSend, "no-send", false, "for testing: do not send ping data")
	rootCmd.AddCommand(listenCmd)
}
