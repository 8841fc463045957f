package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

type recordingPusher struct {
	mu     sync.Mutex
	online map[string]bool
	frames map[string][][]byte
}

func newRecordingPusher(online ...string) *recordingPusher {
	p := &recordingPusher{online: map[string]bool{}, frames: map[string][][]byte{}}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *recordingPusher) PushFrame(userID string, frame []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return 0
	}
	p.frames[userID] = append(p.frames[userID], frame)
	return 1
}

type recordingRelay struct {
	calls [][]string
	err   error
}

func (r *recordingRelay) Publish(_ context.Context, userIDs []string, _ string, _ []byte) error {
	r.calls = append(r.calls, userIDs)
	return r.err
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func TestRecipientsDeduplicatesAndSorts(t *testing.T) {
	r := NewRecipients("b", "a", "b", "").Add("c", "a")

	assert.Equal(t, []string{"a", "b", "c"}, r.Members())
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Contains("c"))

	without := r.Without("a")
	assert.Equal(t, []string{"b", "c"}, without.Members())
	assert.True(t, r.Contains("a"))
}

func TestRecipientsZeroValue(t *testing.T) {
	var r Recipients
	assert.Empty(t, r.Members())
	r = r.Add("x")
	assert.Equal(t, []string{"x"}, r.Members())
}

func TestDeliverPushesOncePerUser(t *testing.T) {
	pusher := newRecordingPusher("a", "b")
	d := NewDispatcher(pusher, nil, testLogger())

	msg := models.Message{ID: "m1", ChatID: "c1", AuthorID: "a", Content: "hi"}
	d.Deliver(context.Background(), NewRecipients("a", "b", "a", "offline"), models.NewMessageEvent(msg))

	require.Len(t, pusher.frames["a"], 1)
	require.Len(t, pusher.frames["b"], 1)
	assert.Empty(t, pusher.frames["offline"])

	var frame struct {
		Event string              `json:"event"`
		Data  models.MessageEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pusher.frames["a"][0], &frame))
	assert.Equal(t, models.EventMessage, frame.Event)
	assert.Equal(t, "m1", frame.Data.ID)
}

func TestDeliverEmptyRecipientsIsNoop(t *testing.T) {
	relay := &recordingRelay{}
	d := NewDispatcher(newRecordingPusher(), relay, testLogger())

	d.Deliver(context.Background(), NewRecipients(), models.SeenPatchEvent{ID: "m"})

	assert.Empty(t, relay.calls)
}

func TestDeliverPublishesToRelayOnce(t *testing.T) {
	relay := &recordingRelay{err: errors.New("redis down")}
	d := NewDispatcher(newRecordingPusher("a"), relay, testLogger())

	assert.NotPanics(t, func() {
		d.Deliver(context.Background(), NewRecipients("b", "a"), models.SeenPatchEvent{ID: "m"})
	})
	require.Len(t, relay.calls, 1)
	assert.Equal(t, []string{"a", "b"}, relay.calls[0])
}

func TestRelayHandleSkipsOwnOrigin(t *testing.T) {
	pusher := newRecordingPusher("a", "b")
	relay := NewRedisRelay(nil, "test", pusher, testLogger())

	own, err := json.Marshal(relayEnvelope{Origin: relay.origin, UserIDs: []string{"a"}, Event: "seen", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	relay.handle(string(own))
	assert.Empty(t, pusher.frames["a"])

	remote, err := json.Marshal(relayEnvelope{Origin: "other", UserIDs: []string{"a", "b", "a"}, Event: "seen", Data: json.RawMessage(`{"event":"seen","data":{}}`)})
	require.NoError(t, err)
	relay.handle(string(remote))
	require.Len(t, pusher.frames["a"], 1)
	require.Len(t, pusher.frames["b"], 1)
	assert.JSONEq(t, `{"event":"seen","data":{}}`, string(pusher.frames["a"][0]))
}

func TestRelayHandleIgnoresMalformedPayload(t *testing.T) {
	pusher := newRecordingPusher("a")
	relay := NewRedisRelay(nil, "test", pusher, testLogger())

	assert.NotPanics(t, func() { relay.handle("not json") })
	assert.Empty(t, pusher.frames)
}
