// Package telemetry builds and sends hgpush pings: for one changeset it
// fetches the metadata, classifies the review system, computes the patch
// diffstat and submits the result to the generic ping ingestion service.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sanix-darker/hgping/internal/classifier"
	"github.com/sanix-darker/hgping/internal/hgmo"
	"github.com/sanix-darker/hgping/internal/patch"
)

// Payload is one hgpush ping. It conforms to the hgpush telemetry schema;
// field names are a wire contract.
type Payload struct {
	ChangesetID      string      `json:"changesetID"`
	ReviewSystemUsed string      `json:"reviewSystemUsed"`
	Repository       string      `json:"repository"`
	PushDate         int64       `json:"pushDate"`
	DiffStat         *patch.Stat `json:"diffstat,omitempty"`
}

// IngestionConfig addresses the generic ping ingestion service. Pings are
// PUT to {BaseURL}/{Namespace}/{Doctype}/{Docversion}/{pingID}.
type IngestionConfig struct {
	BaseURL    string
	Namespace  string
	Doctype    string
	Docversion string
}

// Pinger assembles and transmits pings. Safe for concurrent use.
type Pinger struct {
	hg        *hgmo.Client
	bugs      classifier.BugDataProvider
	http      *resty.Client
	ingestion IngestionConfig
}

// NewPinger wires a Pinger from its collaborators.
func NewPinger(hg *hgmo.Client, bugs classifier.BugDataProvider, ingestion IngestionConfig, timeout time.Duration) *Pinger {
	return &Pinger{
		hg:        hg,
		bugs:      bugs,
		http:      resty.New().SetTimeout(timeout),
		ingestion: ingestion,
	}
}

// PayloadForChangeset builds the ping payload for one changeset ID.
//
// The diffstat is best-effort enrichment: merges are skipped outright (their
// diffs are enormous and carry no review signal of their own) and a failed
// raw-diff fetch leaves the field empty rather than failing the ping.
func (p *Pinger) PayloadForChangeset(ctx context.Context, node, repoURL string) (*Payload, error) {
	cs, err := p.hg.Changeset(ctx, repoURL, node)
	if err != nil {
		return nil, err
	}

	commit := classifier.Commit{
		Node:    cs.Node,
		Desc:    cs.Desc,
		Author:  cs.User,
		Parents: cs.Parents,
	}
	system, err := classifier.DetermineReviewSystem(ctx, commit, p.bugs)
	if err != nil {
		return nil, err
	}

	payload := &Payload{
		ChangesetID:      node,
		ReviewSystemUsed: string(system),
		Repository:       repoURL,
		PushDate:         cs.UTCPushDate(),
	}

	if system != classifier.NotApplicable {
		raw, err := p.hg.RawDiff(ctx, repoURL, node)
		if err != nil {
			log.Warn().Str("node", node).Err(err).Msg("could not fetch raw diff, sending ping without diffstat")
		} else {
			st := patch.DiffStat(raw)
			payload.DiffStat = &st
		}
	}
	return payload, nil
}

// SendPing submits one ping. The pingID is used by the ingestion service for
// event de-duplication.
func (p *Pinger) SendPing(ctx context.Context, pingID string, payload *Payload) error {
	url := fmt.Sprintf("%s/%s/%s/%s/%s",
		p.ingestion.BaseURL,
		p.ingestion.Namespace,
		p.ingestion.Doctype,
		p.ingestion.Docversion,
		pingID,
	)
	log.Info().Str("pingID", pingID).Str("system", payload.ReviewSystemUsed).Msg("sending ping")

	resp, err := p.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Put(url)
	if err != nil {
		return fmt.Errorf("telemetry: sending ping %s: %w", pingID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("telemetry: sending ping %s: %s", pingID, resp.Status())
	}
	return nil
}

// PingID derives the de-duplication UUID for a changeset from the first 32
// hex characters of its ID.
func PingID(changeset string) (string, error) {
	if len(changeset) < 32 {
		return "", fmt.Errorf("telemetry: changeset id %q is too short for a ping id", changeset)
	}
	u, err := uuid.Parse(changeset[:32])
	if err != nil {
		return "", fmt.Errorf("telemetry: deriving ping id from %q: %w", changeset, err)
	}
	return u.String(), nil
}
