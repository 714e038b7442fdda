// Package hgmo is a client for the hg.mozilla.org (hgweb) JSON APIs: the
// json-rev changeset view, the raw-rev patch view and the version-2 pushlog.
package hgmo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNoSuchChangeset is returned when the requested changeset does not exist
// in the target repository.
var ErrNoSuchChangeset = errors.New("no such changeset")

// Changeset mirrors the hgweb json-rev response, e.g.
// https://hg.mozilla.org/mozilla-central/json-rev/deafa2891c61
type Changeset struct {
	Node    string   `json:"node"`
	Desc    string   `json:"desc"`
	User    string   `json:"user"`
	Parents []string `json:"parents"`

	// PushDate is hgweb's (local-unixtime, utc-offset) pair.
	PushDate []float64 `json:"pushdate"`
	PushID   int       `json:"pushid"`
}

// UTCPushDate turns the (local-unixtime, utc-offset) pair back into a UTC
// unix timestamp. Returns 0 when the pair is missing or malformed.
func (cs *Changeset) UTCPushDate() int64 {
	if len(cs.PushDate) != 2 {
		return 0
	}
	return int64(cs.PushDate[0]) + int64(cs.PushDate[1])
}

// Push is one entry of a version-2 pushlog response.
type Push struct {
	Changesets []string `json:"changesets"`
}

type pushlogResponse struct {
	Pushes map[string]Push `json:"pushes"`
}

// Client talks to an hgweb instance. Safe for concurrent use.
type Client struct {
	http *resty.Client
}

// NewClient returns a Client that retries transient server failures
// (500/502/504) with exponential backoff, three attempts at most.
func NewClient(timeout time.Duration) *Client {
	c := resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return isRetryableStatus(r.StatusCode())
		})
	return &Client{http: c}
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Changeset fetches changeset metadata from the repo's json-rev view.
func (c *Client) Changeset(ctx context.Context, repoURL, node string) (*Changeset, error) {
	var cs Changeset
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&cs).
		Get(repoJoin(repoURL, "json-rev", node))
	if err != nil {
		return nil, fmt.Errorf("hgmo: fetching changeset %s: %w", node, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("hgmo: changeset %s does not exist in %s: %w", node, repoURL, ErrNoSuchChangeset)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hgmo: fetching changeset %s: %s", node, resp.Status())
	}
	return &cs, nil
}

// RawDiff fetches the changeset's raw `hg export` patch text.
func (c *Client) RawDiff(ctx context.Context, repoURL, node string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(repoJoin(repoURL, "raw-rev", node))
	if err != nil {
		return "", fmt.Errorf("hgmo: fetching raw diff for %s: %w", node, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", fmt.Errorf("hgmo: changeset %s does not exist in %s: %w", node, repoURL, ErrNoSuchChangeset)
	}
	if resp.IsError() {
		return "", fmt.Errorf("hgmo: fetching raw diff for %s: %s", node, resp.Status())
	}
	return string(resp.Body()), nil
}

// PushesForRange fetches pushlog entries with startID < id <= endID, keyed by
// push id. See the hgweb pushlog version-2 documentation.
func (c *Client) PushesForRange(ctx context.Context, repoURL string, startID, endID int) (map[string]Push, error) {
	var out pushlogResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"startID": fmt.Sprintf("%d", startID),
			"endID":   fmt.Sprintf("%d", endID),
			"version": "2",
		}).
		SetResult(&out).
		Get(repoJoin(repoURL, "json-pushes"))
	if err != nil {
		return nil, fmt.Errorf("hgmo: fetching pushlog: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hgmo: fetching pushlog: %s", resp.Status())
	}
	return out.Pushes, nil
}

func repoJoin(repoURL string, parts ...string) string {
	return strings.TrimRight(repoURL, "/") + "/" + strings.Join(parts, "/")
}
