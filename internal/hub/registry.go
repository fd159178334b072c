package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/voxbridge/signal-server-go/internal/redis"
)

// PresenceEvent is broadcast to every connected client whenever a user
// connects or disconnects, on any server instance.
type PresenceEvent struct {
	UserID int64     `json:"userId"`
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// Registry maps a user id to its single live connection. A user reconnecting
// replaces the previous handle (last-connection-wins); the orphaned handle is
// closed. Presence changes are published through Redis so that instances see
// each other's users, and the subscription loop fans them out locally.
type Registry struct {
	redis   *redisclient.Client
	clients map[int64]Client
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRegistry(redisClient *redisclient.Client) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		redis:   redisClient,
		clients: make(map[int64]Client),
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.subscribePresence()
	return r
}

func (r *Registry) Register(client Client) {
	userID := client.UserID()

	r.mu.Lock()
	prev := r.clients[userID]
	r.clients[userID] = client
	online := len(r.clients)
	r.mu.Unlock()

	if prev != nil && prev != client {
		log.Info().Int64("userId", userID).Msg("replacing existing connection")
		prev.Close()
	}

	log.Info().Int64("userId", userID).Int("online", online).Msg("client registered")
	r.publishPresence(userID, true)
}

// Unregister removes the mapping only when it still points at this client, so
// a handle orphaned by a reconnect cannot knock out its replacement. It
// reports whether the mapping was actually removed; callers must skip user
// teardown when it was not, because the user is still connected elsewhere.
func (r *Registry) Unregister(client Client) bool {
	userID := client.UserID()

	r.mu.Lock()
	current, ok := r.clients[userID]
	removed := ok && current == client
	if removed {
		delete(r.clients, userID)
	}
	online := len(r.clients)
	r.mu.Unlock()

	if !removed {
		return false
	}

	log.Info().Int64("userId", userID).Int("online", online).Msg("client unregistered")
	r.publishPresence(userID, false)
	return true
}

func (r *Registry) Lookup(userID int64) Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[userID]
}

func (r *Registry) Online() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Close() {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, client := range r.clients {
		client.Close()
	}
	r.clients = make(map[int64]Client)
}

func (r *Registry) publishPresence(userID int64, online bool) {
	data, err := json.Marshal(PresenceEvent{UserID: userID, Online: online, At: time.Now().UTC()})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal presence event")
		return
	}

	if err := r.redis.Publish(r.ctx, redisclient.PresenceChannel(), data).Err(); err != nil {
		log.Error().Err(err).Int64("userId", userID).Msg("failed to publish presence event")
	}
}

func (r *Registry) subscribePresence() {
	pubsub := r.redis.Subscribe(r.ctx, redisclient.PresenceChannel())
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			event := Event{Type: EventPresence, Data: json.RawMessage(msg.Payload)}
			r.broadcast(event)
		}
	}
}

func (r *Registry) broadcast(event Event) {
	r.mu.RLock()
	clients := make([]Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	r.mu.RUnlock()

	for _, client := range clients {
		if !client.Send(event) {
			log.Warn().Int64("userId", client.UserID()).Msg("client event buffer full, dropping event")
		}
	}
}
