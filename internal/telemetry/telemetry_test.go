package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/hgping/internal/classifier"
	"github.com/sanix-darker/hgping/internal/hgmo"
	"github.com/sanix-darker/hgping/internal/patch"
)

const testNode = "445d1a7b050419f0ea266b0c191001d788f7850d"

const testRawDiff = `diff --git a/hello.txt b/hello.txt
--- a/hello.txt
+++ b/hello.txt
@@ -1 +1 @@
-hello
+goodbye
`

type fakeBugData struct {
	attachments []classifier.Attachment
	history     []classifier.HistoryEntry
}

func (f *fakeBugData) FetchAttachments(ctx context.Context, bugID int) ([]classifier.Attachment, error) {
	return f.attachments, nil
}

func (f *fakeBugData) FetchBugHistory(ctx context.Context, bugID int) ([]classifier.HistoryEntry, error) {
	return f.history, nil
}

// fakeHgweb serves json-rev and raw-rev for a single changeset.
func fakeHgweb(t *testing.T, desc string, parents []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json-rev/" + testNode:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"node":     testNode,
				"desc":     desc,
				"user":     "Test User <author@mozilla.com>",
				"parents":  parents,
				"pushdate": []int64{1537966541, 0},
			})
		case "/raw-rev/" + testNode:
			_, _ = w.Write([]byte(testRawDiff))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestPinger(bugs classifier.BugDataProvider, ingestion IngestionConfig) *Pinger {
	return NewPinger(hgmo.NewClient(5*time.Second), bugs, ingestion, 5*time.Second)
}

func TestPayloadForChangeset(t *testing.T) {
	srv := fakeHgweb(t, "Bug 1463962 - crash near null, r=jamie", []string{"83f4bc25eec8"})
	defer srv.Close()

	bugs := &fakeBugData{
		attachments: []classifier.Attachment{{ContentType: "text/x-phabricator-request"}},
	}
	p := newTestPinger(bugs, IngestionConfig{})

	payload, err := p.PayloadForChangeset(context.Background(), testNode, srv.URL)
	require.NoError(t, err)

	assert.Equal(t, testNode, payload.ChangesetID)
	assert.Equal(t, "phabricator", payload.ReviewSystemUsed)
	assert.Equal(t, srv.URL, payload.Repository)
	assert.Equal(t, int64(1537966541), payload.PushDate)
	require.NotNil(t, payload.DiffStat)
	assert.Equal(t, patch.Stat{FilesChanged: 1, Additions: 1, Deletions: 1}, *payload.DiffStat)
}

func TestPayloadForMergeSkipsDiffStat(t *testing.T) {
	srv := fakeHgweb(t, "Merge autoland to mozilla-central", []string{"aaa", "bbb"})
	defer srv.Close()

	p := newTestPinger(&fakeBugData{}, IngestionConfig{})

	payload, err := p.PayloadForChangeset(context.Background(), testNode, srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "not_applicable", payload.ReviewSystemUsed)
	assert.Nil(t, payload.DiffStat)
}

func TestPayloadForMissingChangeset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	p := newTestPinger(&fakeBugData{}, IngestionConfig{})

	_, err := p.PayloadForChangeset(context.Background(), testNode, srv.URL)
	assert.ErrorIs(t, err, hgmo.ErrNoSuchChangeset)
}

func TestSendPing(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	p := newTestPinger(&fakeBugData{}, IngestionConfig{
		BaseURL:    srv.URL,
		Namespace:  "eng-workflow",
		Doctype:    "hgpush",
		Docversion: "1",
	})

	payload := &Payload{
		ChangesetID:      testNode,
		ReviewSystemUsed: "phabricator",
		Repository:       "https://hg.mozilla.org/mozilla-central/",
		PushDate:         1537966541,
	}
	pingID, err := PingID(testNode)
	require.NoError(t, err)
	require.NoError(t, p.SendPing(context.Background(), pingID, payload))

	assert.Equal(t, fmt.Sprintf("/eng-workflow/hgpush/1/%s", pingID), gotPath)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	assert.Equal(t, "phabricator", sent["reviewSystemUsed"])
	assert.Equal(t, testNode, sent["changesetID"])
	// diffstat is optional and must be omitted when absent.
	assert.NotContains(t, sent, "diffstat")
}

func TestPingID(t *testing.T) {
	id, err := PingID(testNode)
	require.NoError(t, err)
	assert.Equal(t, "445d1a7b-0504-19f0-ea26-6b0c191001d7", id)

	_, err = PingID("tooshort")
	assert.Error(t, err)
}
