package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/voxbridge/signal-server-go/internal/redis"
)

type fakeClient struct {
	userID int64
	events chan Event
	closed chan struct{}
}

func newFakeClient(userID int64) *fakeClient {
	return &fakeClient{
		userID: userID,
		events: make(chan Event, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeClient) UserID() int64 { return c.userID }

func (c *fakeClient) Send(event Event) bool {
	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

func (c *fakeClient) Close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

func (c *fakeClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeClient) waitForPresence(t *testing.T, userID int64, online bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-c.events:
			if event.Type != EventPresence {
				continue
			}
			var p PresenceEvent
			require.NoError(t, json.Unmarshal(event.Data, &p))
			if p.UserID == userID && p.Online == online {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for presence userId=%d online=%v", userID, online)
		}
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redisclient.NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	registry := NewRegistry(client)
	t.Cleanup(registry.Close)

	// Give the presence subscription a moment to attach.
	time.Sleep(50 * time.Millisecond)

	return registry
}

func TestRegistryLookup(t *testing.T) {
	registry := newTestRegistry(t)

	alice := newFakeClient(1)
	registry.Register(alice)

	assert.Equal(t, Client(alice), registry.Lookup(1))
	assert.Nil(t, registry.Lookup(2))
}

func TestRegistryOnline(t *testing.T) {
	registry := newTestRegistry(t)

	registry.Register(newFakeClient(1))
	registry.Register(newFakeClient(2))

	assert.ElementsMatch(t, []int64{1, 2}, registry.Online())
}

func TestRegistryPresenceBroadcast(t *testing.T) {
	registry := newTestRegistry(t)

	alice := newFakeClient(1)
	registry.Register(alice)

	bob := newFakeClient(2)
	registry.Register(bob)

	// Alice sees Bob come online.
	alice.waitForPresence(t, 2, true)

	registry.Unregister(bob)
	alice.waitForPresence(t, 2, false)
}

func TestRegistryLastConnectionWins(t *testing.T) {
	registry := newTestRegistry(t)

	first := newFakeClient(1)
	registry.Register(first)

	second := newFakeClient(1)
	registry.Register(second)

	assert.True(t, first.isClosed(), "replaced connection should be closed")
	assert.Equal(t, Client(second), registry.Lookup(1))

	// Unregistering the orphaned handle must not remove the replacement, and
	// must report that nothing was removed.
	assert.False(t, registry.Unregister(first))
	assert.Equal(t, Client(second), registry.Lookup(1))
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	registry := newTestRegistry(t)

	alice := newFakeClient(1)
	registry.Register(alice)
	assert.True(t, registry.Unregister(alice))
	assert.False(t, registry.Unregister(alice))

	assert.Nil(t, registry.Lookup(1))
	assert.Empty(t, registry.Online())
}
