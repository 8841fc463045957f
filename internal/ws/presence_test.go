package ws

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
)

type flagStore struct {
	mu     sync.Mutex
	online map[string]bool
	writes int
}

func (f *flagStore) SetOnline(_ context.Context, userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID] = online
	f.writes++
	return nil
}

func (f *flagStore) get(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

func TestSyncPresenceFollowsHub(t *testing.T) {
	hub := newTestHub()
	store := &flagStore{online: map[string]bool{}}
	h := NewHandler(hub, store, nil, logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	handle, _ := hub.Register("u", &fakeConn{}, ConnInfo{})
	h.syncPresence("u")
	assert.True(t, store.get("u"))

	hub.Unregister(handle)
	h.syncPresence("u")
	assert.False(t, store.get("u"))
}

func TestSyncPresenceSettlesOnFinalState(t *testing.T) {
	hub := newTestHub()
	store := &flagStore{online: map[string]bool{}}
	h := NewHandler(hub, store, nil, logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		handle, _ := hub.Register("u", &fakeConn{}, ConnInfo{})
		go func() {
			defer wg.Done()
			hub.Unregister(handle)
			h.syncPresence("u")
		}()
		go func() {
			defer wg.Done()
			hub.Register("u", &fakeConn{}, ConnInfo{})
			h.syncPresence("u")
		}()
	}
	wg.Wait()

	assert.True(t, hub.IsOnline("u"))
	assert.True(t, store.get("u"))
}
