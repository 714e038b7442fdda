package pulse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanix-darker/hgping/internal/telemetry"
)

type fakePinger struct {
	payloads  int
	sent      []string
	buildErr  error
	sendErr   error
	lastRepo  string
	lastNode  string
	lastPing  *telemetry.Payload
	payloadFn func() *telemetry.Payload
}

func (f *fakePinger) PayloadForChangeset(ctx context.Context, node, repoURL string) (*telemetry.Payload, error) {
	f.payloads++
	f.lastNode = node
	f.lastRepo = repoURL
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	p := &telemetry.Payload{ChangesetID: node, Repository: repoURL, ReviewSystemUsed: "phabricator"}
	if f.payloadFn != nil {
		p = f.payloadFn()
	}
	f.lastPing = p
	return p, nil
}

func (f *fakePinger) SendPing(ctx context.Context, pingID string, payload *telemetry.Payload) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, pingID)
	return nil
}

const goodMessage = `{
	"payload": {
		"type": "changegroup.1",
		"data": {
			"heads": ["445d1a7b050419f0ea266b0c191001d788f7850d"],
			"repo_url": "https://hg.mozilla.org/mozilla-central"
		}
	}
}`

func newTestListener(p *fakePinger, noSend bool) *Listener {
	return &Listener{opts: Options{NoSend: noSend}, pinger: p}
}

func TestHandleSendsPingForChangegroup(t *testing.T) {
	p := &fakePinger{}
	l := newTestListener(p, false)

	require.NoError(t, l.handle(context.Background(), []byte(goodMessage)))

	assert.Equal(t, 1, p.payloads)
	assert.Equal(t, "445d1a7b050419f0ea266b0c191001d788f7850d", p.lastNode)
	assert.Equal(t, "https://hg.mozilla.org/mozilla-central", p.lastRepo)
	require.Len(t, p.sent, 1)
	assert.Equal(t, "445d1a7b-0504-19f0-ea26-6b0c191001d7", p.sent[0])
}

func TestHandleSkipsOtherMessageTypes(t *testing.T) {
	p := &fakePinger{}
	l := newTestListener(p, false)

	body := `{"payload": {"type": "obsolete.1", "data": {"heads": ["abc"], "repo_url": "x"}}}`
	require.NoError(t, l.handle(context.Background(), []byte(body)))

	assert.Zero(t, p.payloads)
	assert.Empty(t, p.sent)
}

func TestHandleSkipsMultipleHeads(t *testing.T) {
	p := &fakePinger{}
	l := newTestListener(p, false)

	body := `{"payload": {"type": "changegroup.1", "data": {"heads": ["abc", "def"], "repo_url": "x"}}}`
	require.NoError(t, l.handle(context.Background(), []byte(body)))

	assert.Zero(t, p.payloads)
}

func TestHandleSkipsGarbage(t *testing.T) {
	p := &fakePinger{}
	l := newTestListener(p, false)

	require.NoError(t, l.handle(context.Background(), []byte("not json")))
	assert.Zero(t, p.payloads)
}

func TestHandleNoSendBuildsButDoesNotTransmit(t *testing.T) {
	p := &fakePinger{}
	l := newTestListener(p, true)

	require.NoError(t, l.handle(context.Background(), []byte(goodMessage)))

	assert.Equal(t, 1, p.payloads)
	assert.Empty(t, p.sent)
}

func TestHandlePropagatesBuildErrors(t *testing.T) {
	boom := errors.New("hgweb is down")
	p := &fakePinger{buildErr: boom}
	l := newTestListener(p, false)

	assert.ErrorIs(t, l.handle(context.Background(), []byte(goodMessage)), boom)
}
