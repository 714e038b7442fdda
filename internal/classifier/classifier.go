// Package classifier guesses which review system, if any, was used to
// approve a mercurial changeset.
//
// Classification is best-effort: cheap checks on the changeset summary run
// first, and only when none of them match is Bugzilla consulted through an
// injected BugDataProvider. The decision chain is an ordered rule list with
// short-circuit semantics; the order carries meaning and must not change.
package classifier

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Bugzilla attachment content types.
const (
	attachmentTypeMozReview   = "text/x-review-board-request"
	attachmentTypeGitHub      = "text/x-github-request"
	attachmentTypePhabricator = "text/x-phabricator-request"
)

// Identity the wpt sync bot uses when landing automated test imports.
const wptSyncBotAuthor = "moz-wptsync-bot <wptsync@mozilla.com>"

var (
	// Matches "Backed out 4 changesets (bug 1448077) for xpcshell failures at..."
	backoutRE = regexp.MustCompile(`(?i)^back(ed|ing|out)? out `)

	// Matches the standalone phrase "no bug", not "bug" as a substring.
	noBugRE = regexp.MustCompile(`(?i)\bno bug\b`)

	// Matches uplift approval markers like "a=testonly" or "a=release".
	upliftRE = regexp.MustCompile(`(?i)\ba=\S+`)

	// Matches wpt sync commits, e.g. "Bug 123 [wpt PR 10812] - blah, a=testonly".
	wptSyncRE = regexp.MustCompile(`(?i)\[wpt pr \d+\].*a=testonly`)

	// Matches bug references like "Bug 1234" or "b=1234".
	bugIDRE = regexp.MustCompile(`(?i)\b(?:bug|b=)\s*#?(\d+)`)
)

// ReviewSystem is the review system used for a commit.
//
// The values are serialized into telemetry pings and consumed by a fixed
// schema downstream; they are a wire contract and must never be renamed.
type ReviewSystem string

const (
	Phabricator ReviewSystem = "phabricator"
	// MozReview is decommissioned and never produced anymore, but the tag is
	// kept so historical pings still deserialize.
	MozReview      ReviewSystem = "mozreview"
	BMO            ReviewSystem = "bmo"
	NoBug          ReviewSystem = "no_bug"
	ReviewUnneeded ReviewSystem = "review_unneeded"
	Unknown        ReviewSystem = "unknown"
	NotApplicable  ReviewSystem = "not_applicable"
)

// Commit carries the changeset fields the classifier inspects. It is built
// from hgweb json-rev data by the caller.
type Commit struct {
	// Node is the 40-hex changeset ID.
	Node string

	// Desc is the full free-text commit description.
	Desc string

	// Author is the "user" field from hgweb, e.g. "Jane Doe <jd@mozilla.com>".
	Author string

	// Parents holds the parent changeset IDs. Two or more means a merge.
	Parents []string
}

// Summary returns the first line of the commit description.
func (c Commit) Summary() string {
	return splitSummary(c.Desc)
}

// IsMerge reports whether the commit has more than one parent.
func (c Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

// Attachment is a review-relevant subset of a Bugzilla attachment.
type Attachment struct {
	ContentType string
	IsPatch     bool
	IsObsolete  bool
}

// HistoryEntry is one change-group from a bug's history.
type HistoryEntry struct {
	Changes []FieldChange
}

// FieldChange is a single field modification inside a history entry. Added
// holds the comma-separated flag values that were set.
type FieldChange struct {
	FieldName string
	Added     string
}

// BugDataProvider supplies a bug's attachments and history. Implementations
// own all network concerns (retries, timeouts); failures must be reported as
// *BugDataError values so the classifier can map them to outcomes.
type BugDataProvider interface {
	FetchAttachments(ctx context.Context, bugID int) ([]Attachment, error)
	FetchBugHistory(ctx context.Context, bugID int) ([]HistoryEntry, error)
}

// localRule pairs a summary/metadata predicate with the outcome it forces.
// Rules are evaluated strictly in order; the first match wins.
type localRule struct {
	outcome ReviewSystem
	matches func(c Commit, summary string) bool
}

var localRules = []localRule{
	{ReviewUnneeded, func(c Commit, s string) bool { return hasBackoutMarkers(s) }},
	{NotApplicable, func(c Commit, s string) bool { return c.IsMerge() }},
	{NoBug, func(c Commit, s string) bool { return hasNoBugMarker(s) }},
	{ReviewUnneeded, func(c Commit, s string) bool { return hasUpliftMarkers(s) }},
	{ReviewUnneeded, func(c Commit, s string) bool { return hasWptUpliftMarkers(c.Author, s) }},
}

// DetermineReviewSystem looks for review system markers and guesses which
// review system was used for the given commit.
//
// Recognized bug-data failures never surface as errors: a confidential bug
// (ErrNotAuthorized) is lumped into the NoBug bucket for reporting purposes,
// and any other fetch failure yields Unknown. Only failures outside the
// provider's error contract are returned, alongside Unknown.
func DetermineReviewSystem(ctx context.Context, c Commit, bugs BugDataProvider) (ReviewSystem, error) {
	summary := c.Summary()

	for _, rule := range localRules {
		if rule.matches(c, summary) {
			log.Debug().
				Str("node", c.Node).
				Str("system", string(rule.outcome)).
				Msg("classified changeset from summary markers")
			return rule.outcome, nil
		}
	}

	bugID, ok := parseBugID(summary)
	if !ok {
		log.Info().Str("node", c.Node).Msg("no bug id in changeset summary")
		return Unknown, nil
	}

	attachments, err := bugs.FetchAttachments(ctx, bugID)
	var history []HistoryEntry
	if err == nil {
		history, err = bugs.FetchBugHistory(ctx, bugID)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAuthorized):
			// Confidential bug. Reported in the no_bug bucket on purpose.
			log.Info().Str("node", c.Node).Int("bug", bugID).Msg("bug data is not accessible")
			return NoBug, nil
		case errors.Is(err, ErrFetchFailed):
			log.Info().Str("node", c.Node).Int("bug", bugID).Err(err).Msg("could not fetch bug data")
			return Unknown, nil
		default:
			return Unknown, err
		}
	}

	reviewable := CollectReviewAttachments(attachments)

	// Phabricator attachments are an unambiguous signal, check them first.
	for _, a := range reviewable {
		if a.ContentType == attachmentTypePhabricator {
			return Phabricator, nil
		}
	}

	// Fall back to plain patch attachments reviewed on the bug itself,
	// e.g. with splinter.
	if hasPatchAttachment(reviewable) && hasReviewPlusFlag(history) {
		return BMO, nil
	}

	log.Info().Str("node", c.Node).Int("bug", bugID).Msg("changeset is missing all known review system markers")
	return Unknown, nil
}

// CollectReviewAttachments narrows an attachment list down to the ones that
// can carry a review: non-obsolete GitHub or Phabricator request attachments
// and raw patches. MozReview attachments are never kept since that system is
// decommissioned and must not influence new classifications. Input order is
// preserved.
func CollectReviewAttachments(attachments []Attachment) []Attachment {
	kept := make([]Attachment, 0, len(attachments))
	for _, a := range attachments {
		if a.IsObsolete || a.ContentType == attachmentTypeMozReview {
			continue
		}
		if a.ContentType == attachmentTypeGitHub || a.ContentType == attachmentTypePhabricator || a.IsPatch {
			kept = append(kept, a)
		}
	}
	return kept
}

func hasPatchAttachment(attachments []Attachment) bool {
	for _, a := range attachments {
		if a.IsPatch {
			return true
		}
	}
	return false
}

// hasReviewPlusFlag reports whether the bug history contains a flagtypes.name
// change that added "review+". Review requests and grants are not balanced:
// a single review+ is taken to mean a review was completed.
func hasReviewPlusFlag(history []HistoryEntry) bool {
	for _, entry := range history {
		for _, change := range entry.Changes {
			if change.FieldName != "flagtypes.name" {
				continue
			}
			for _, flag := range strings.Split(change.Added, ",") {
				if strings.TrimSpace(flag) == "review+" {
					return true
				}
			}
		}
	}
	return false
}

// splitSummary returns the text up to the first line break.
func splitSummary(desc string) string {
	if i := strings.IndexByte(desc, '\n'); i >= 0 {
		return desc[:i]
	}
	return desc
}

func hasBackoutMarkers(summary string) bool {
	return backoutRE.MatchString(summary)
}

func hasNoBugMarker(summary string) bool {
	return noBugRE.MatchString(summary)
}

func hasUpliftMarkers(summary string) bool {
	return upliftRE.MatchString(summary)
}

// hasWptUpliftMarkers reports whether the commit was produced by the wpt
// sync bot, either from the bot's author identity or the sync marker plus
// a=testonly in the summary.
func hasWptUpliftMarkers(author, summary string) bool {
	if author == wptSyncBotAuthor {
		return true
	}
	return wptSyncRE.MatchString(summary)
}

// parseBugID extracts the first bug number referenced in the summary. For
// Firefox commits the bug id is conventionally at the front of the string,
// like "Bug 1458766 - fix the bar". Summaries with a second reference later
// on, such as "[wpt PR 10812] blah (bug 1111111) r=foo", will still pick up
// the wrong id; downstream consumers depend on that long-standing behaviour.
func parseBugID(summary string) (int, bool) {
	m := bugIDRE.FindStringSubmatch(summary)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
