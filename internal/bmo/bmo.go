// Package bmo is a client for the Bugzilla (bugzilla.mozilla.org) REST API.
// It implements classifier.BugDataProvider and translates transport failures
// into the classifier's BugDataError taxonomy.
package bmo

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sanix-darker/hgping/internal/classifier"
)

// Client fetches bug attachments and history. Safe for concurrent use.
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient returns a Client for the given REST base URL, e.g.
// "https://bugzilla.mozilla.org/rest". Transient server failures
// (500/502/504) are retried with exponential backoff.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(300 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			switch r.StatusCode() {
			case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
				return true
			}
			return false
		})
	return &Client{http: c, baseURL: baseURL}
}

type attachmentJSON struct {
	ContentType string `json:"content_type"`
	IsPatch     int    `json:"is_patch"`
	IsObsolete  int    `json:"is_obsolete"`
}

// apiError holds the error envelope BMO puts into otherwise-200 responses
// for bugs the caller may not see.
type apiError struct {
	Error   bool   `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type attachmentsResponse struct {
	apiError
	Bugs map[string][]attachmentJSON `json:"bugs"`
}

type historyChangeJSON struct {
	FieldName string `json:"field_name"`
	Added     string `json:"added"`
}

type historyEntryJSON struct {
	Changes []historyChangeJSON `json:"changes"`
}

type historyResponse struct {
	apiError
	Bugs []struct {
		History []historyEntryJSON `json:"history"`
	} `json:"bugs"`
}

// FetchAttachments fetches the bug's attachment list, without attachment
// data. Example: https://bugzilla.mozilla.org/rest/bug/1447193/attachment?exclude_fields=data
func (c *Client) FetchAttachments(ctx context.Context, bugID int) ([]classifier.Attachment, error) {
	var out attachmentsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("exclude_fields", "data").
		SetResult(&out).
		Get(fmt.Sprintf("%s/bug/%d/attachment", c.baseURL, bugID))
	if bugErr := classifyResponse(resp, err, out.apiError, "fetching attachments"); bugErr != nil {
		return nil, bugErr
	}

	raw := out.Bugs[strconv.Itoa(bugID)]
	attachments := make([]classifier.Attachment, 0, len(raw))
	for _, a := range raw {
		attachments = append(attachments, classifier.Attachment{
			ContentType: a.ContentType,
			IsPatch:     a.IsPatch == 1,
			IsObsolete:  a.IsObsolete == 1,
		})
	}
	return attachments, nil
}

// FetchBugHistory fetches the bug's change history.
// Example: https://bugzilla.mozilla.org/rest/bug/1447193/history
func (c *Client) FetchBugHistory(ctx context.Context, bugID int) ([]classifier.HistoryEntry, error) {
	var out historyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("%s/bug/%d/history", c.baseURL, bugID))
	if bugErr := classifyResponse(resp, err, out.apiError, "fetching bug history"); bugErr != nil {
		return nil, bugErr
	}
	if len(out.Bugs) == 0 {
		return nil, nil
	}

	raw := out.Bugs[0].History
	history := make([]classifier.HistoryEntry, 0, len(raw))
	for _, entry := range raw {
		converted := classifier.HistoryEntry{
			Changes: make([]classifier.FieldChange, 0, len(entry.Changes)),
		}
		for _, change := range entry.Changes {
			converted.Changes = append(converted.Changes, classifier.FieldChange{
				FieldName: change.FieldName,
				Added:     change.Added,
			})
		}
		history = append(history, converted)
	}
	return history, nil
}

// classifyResponse maps a transport result onto the classifier's error
// taxonomy. A 401/403 status, or an error envelope inside a 200 body (BMO
// returns those for confidential bugs), means the bug is not accessible.
func classifyResponse(resp *resty.Response, err error, envelope apiError, op string) error {
	if err != nil {
		return &classifier.BugDataError{
			Code:    classifier.CodeFetchFailed,
			Message: op,
			Cause:   err,
		}
	}
	if envelope.Error || resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return &classifier.BugDataError{
			Code:       classifier.CodeNotAuthorized,
			Message:    envelope.Message,
			StatusCode: resp.StatusCode(),
		}
	}
	if resp.IsError() {
		return &classifier.BugDataError{
			Code:       classifier.CodeFetchFailed,
			Message:    fmt.Sprintf("%s: %s", op, resp.Status()),
			StatusCode: resp.StatusCode(),
		}
	}
	return nil
}
