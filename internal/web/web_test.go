package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/hgping/internal/telemetry"
)

type fakeBuilder struct {
	payload *telemetry.Payload
	err     error
	node    string
}

func (f *fakeBuilder) PayloadForChangeset(ctx context.Context, node, repoURL string) (*telemetry.Payload, error) {
	f.node = node
	return f.payload, f.err
}

func testServer(f *fakeBuilder) *Server {
	return &Server{pinger: f, repoURL: "https://hg.mozilla.org/mozilla-central/"}
}

func TestIndexForm(t *testing.T) {
	srv := testServer(&fakeBuilder{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="changesetid"`)
}

func TestIndexPostShowsPing(t *testing.T) {
	f := &fakeBuilder{
		payload: &telemetry.Payload{
			ChangesetID:      "445d1a7b0504",
			ReviewSystemUsed: "phabricator",
		},
	}
	srv := testServer(f)

	form := url.Values{"changesetid": {"445d1a7b0504"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "445d1a7b0504", f.node)
	assert.Contains(t, rec.Body.String(), `&#34;reviewSystemUsed&#34;: &#34;phabricator&#34;`)
}

func TestIndexPostShowsError(t *testing.T) {
	f := &fakeBuilder{err: errors.New("no such changeset")}
	srv := testServer(f)

	form := url.Values{"changesetid": {"deadbeef"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such changeset")
}

func TestUnknownPathIs404(t *testing.T) {
	srv := testServer(&fakeBuilder{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
