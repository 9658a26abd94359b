package realtime

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkwell-app/inkwell-backend/utils"
)

func TestMain(m *testing.M) {
	utils.Logger = zap.NewNop()
	utils.Sugar = utils.Logger.Sugar()
	os.Exit(m.Run())
}

// stubSource serves canned snapshots and can simulate a building index.
type stubSource struct {
	notReady bool
	fail     bool
	calls    []string
}

func (s *stubSource) Snapshot(email, scope string, limit int) (interface{}, error) {
	s.calls = append(s.calls, email+"/"+scope)
	if s.notReady {
		return nil, ErrNotReady
	}
	if s.fail {
		return nil, errors.New("boom")
	}
	return []string{"n1", "n2"}, nil
}

func newTestClient(hub *Hub, email string) *Client {
	return &Client{
		ID:    "test-conn",
		Email: email,
		Send:  make(chan []byte, 16),
		hub:   hub,
		subs:  make(map[string]subscription),
	}
}

func decodeFrame(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-c.Send:
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	default:
		t.Fatal("expected a frame on the send channel")
		return nil
	}
}

func TestSubscribePushesInitialSnapshot(t *testing.T) {
	src := &stubSource{}
	hub := &Hub{source: src}
	c := newTestClient(hub, "bob@example.com")

	c.handleFrame([]byte(`{"action":"subscribe","id":"sub-1","scope":"recent","limit":5}`))

	frame := decodeFrame(t, c)
	assert.Equal(t, "snapshot", frame["type"])
	assert.Equal(t, "sub-1", frame["id"])
	assert.Len(t, frame["data"], 2)
	assert.Equal(t, []string{"bob@example.com/recent"}, src.calls)
}

func TestSubscribeDefaultsToRecentScope(t *testing.T) {
	src := &stubSource{}
	hub := &Hub{source: src}
	c := newTestClient(hub, "bob@example.com")

	c.handleFrame([]byte(`{"action":"subscribe","id":"sub-1"}`))

	_ = decodeFrame(t, c)
	sub := c.subs["sub-1"]
	assert.Equal(t, ScopeRecent, sub.Scope)
	assert.Equal(t, DefaultRecentLimit, sub.Limit)
}

func TestSubscribeReportsIndexNotReady(t *testing.T) {
	src := &stubSource{notReady: true}
	hub := &Hub{source: src}
	c := newTestClient(hub, "bob@example.com")

	c.handleFrame([]byte(`{"action":"subscribe","id":"sub-1","scope":"all"}`))

	frame := decodeFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "index_not_ready", frame["code"])
	assert.Equal(t, "sub-1", frame["id"])
	// The subscription stays registered so a later publish can succeed.
	assert.Contains(t, c.subs, "sub-1")
}

func TestSubscribeRejectsMissingID(t *testing.T) {
	hub := &Hub{source: &stubSource{}}
	c := newTestClient(hub, "bob@example.com")

	c.handleFrame([]byte(`{"action":"subscribe"}`))

	frame := decodeFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "bad_frame", frame["code"])
	assert.Empty(t, c.subs)
}

func TestUnsubscribeCancelsOnlyOneSubscription(t *testing.T) {
	src := &stubSource{}
	hub := &Hub{source: src}
	c := newTestClient(hub, "bob@example.com")

	c.handleFrame([]byte(`{"action":"subscribe","id":"recent-feed","scope":"recent"}`))
	c.handleFrame([]byte(`{"action":"subscribe","id":"full-feed","scope":"all"}`))
	_ = decodeFrame(t, c)
	_ = decodeFrame(t, c)

	c.handleFrame([]byte(`{"action":"unsubscribe","id":"recent-feed"}`))

	assert.NotContains(t, c.subs, "recent-feed")
	assert.Contains(t, c.subs, "full-feed")

	// Only the surviving subscription refreshes.
	src.calls = nil
	c.pushAll()
	assert.Equal(t, []string{"bob@example.com/all"}, src.calls)
}

func TestFanOutTargetsRecipientOnly(t *testing.T) {
	src := &stubSource{}
	hub := &Hub{
		source:  src,
		clients: make(map[*Client]struct{}),
		byEmail: make(map[string]map[*Client]struct{}),
	}

	bob := newTestClient(hub, "bob@example.com")
	carol := newTestClient(hub, "carol@example.com")
	for _, c := range []*Client{bob, carol} {
		hub.clients[c] = struct{}{}
		hub.byEmail[c.Email] = map[*Client]struct{}{c: {}}
		c.handleFrame([]byte(`{"action":"subscribe","id":"feed","scope":"recent"}`))
		_ = decodeFrame(t, c)
	}

	src.calls = nil
	hub.fanOut("bob@example.com")

	assert.Equal(t, []string{"bob@example.com/recent"}, src.calls)
	frame := decodeFrame(t, bob)
	assert.Equal(t, "snapshot", frame["type"])
	select {
	case <-carol.Send:
		t.Fatal("carol must not receive bob's refresh")
	default:
	}
}

func TestMalformedFrameAnswersWithError(t *testing.T) {
	hub := &Hub{source: &stubSource{}}
	c := newTestClient(hub, "bob@example.com")

	c.handleFrame([]byte(`{not json`))

	frame := decodeFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "bad_frame", frame["code"])
}
