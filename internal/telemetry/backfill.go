package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/sanix-darker/hgping/internal/hgmo"
)

// SendPingsByPushID fetches pushlog entries with startID < id <= endID and
// sends one ping per changeset, in push order. With noSend set, pings are
// built and logged but not transmitted. The progress callback, when non-nil,
// receives a short status line per push for spinner updates.
func (p *Pinger) SendPingsByPushID(ctx context.Context, repoURL string, startID, endID int, noSend bool, progress func(string)) error {
	if noSend {
		log.Info().Msg("transmission of ping data has been disabled")
	}

	pushes, err := p.hg.PushesForRange(ctx, repoURL, startID, endID)
	if err != nil {
		return err
	}

	for _, pushID := range sortedPushIDs(pushes) {
		if progress != nil {
			progress(fmt.Sprintf(" processing push %s", pushID))
		}

		changesets := pushes[pushID].Changesets
		log.Info().Str("pushid", pushID).Int("changesets", len(changesets)).Msg("processing push")

		for _, changeset := range changesets {
			payload, err := p.PayloadForChangeset(ctx, changeset, repoURL)
			if err != nil {
				return fmt.Errorf("telemetry: backfilling push %s: %w", pushID, err)
			}

			if noSend {
				log.Info().Str("node", changeset).Interface("ping", payload).Msg("ping data (not sent)")
				continue
			}

			pingID, err := PingID(changeset)
			if err != nil {
				return err
			}
			if err := p.SendPing(ctx, pingID, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortedPushIDs returns the push ids in ascending numeric order. The pushlog
// keys them as decimal strings.
func sortedPushIDs(pushes map[string]hgmo.Push) []string {
	ids := make([]string, 0, len(pushes))
	for id := range pushes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	return ids
}
