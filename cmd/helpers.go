/*
Copyright © 2023 sanix-darker <s4nixd@gmail.com>
*/

package cmd

import (
	"github.com/sanix-darker/hgping/internal/bmo"
	"github.com/sanix-darker/hgping/internal/hgmo"
	"github.com/sanix-darker/hgping/internal/telemetry"
)

// newPinger wires the hgweb and Bugzilla clients into a Pinger from the
// loaded configuration.
func newPinger() *telemetry.Pinger {
	return telemetry.NewPinger(
		hgmo.NewClient(cfg.HTTPTimeout),
		bmo.NewClient(cfg.BMOAPIURL, cfg.HTTPTimeout),
		telemetry.IngestionConfig{
			BaseURL:    cfg.TMOBaseURL,
			Namespace:  cfg.TMOPingNamespace,
			Doctype:    cfg.TMOPingDoctype,
			Docversion: cfg.TMOPingDocversion,
		},
		cfg.HTTPTimeout,
	)
}
