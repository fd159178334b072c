package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/voxbridge/signal-server-go/internal/hub"
	"github.com/voxbridge/signal-server-go/internal/model"
)

// Mock call repository

type mockCallRepo struct {
	mock.Mock
}

func (m *mockCallRepo) Create(ctx context.Context, params model.CreateCallParams) (*model.Call, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) FindByID(ctx context.Context, id string) (*model.Call, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) MarkRinging(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCallRepo) Accept(ctx context.Context, id string) (*model.Call, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) MarkRejected(ctx context.Context, id string) (*model.Call, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) MarkMissed(ctx context.Context, id string) (*model.Call, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) MarkEnded(ctx context.Context, id string) (*model.Call, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) FindActiveByParticipant(ctx context.Context, userID int64) ([]model.Call, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Call), args.Error(1)
}

func (m *mockCallRepo) FindMissedForUserSince(ctx context.Context, userID int64, since time.Time) ([]model.Call, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Call), args.Error(1)
}

func (m *mockCallRepo) FindByParticipant(ctx context.Context, userID int64, limit, offset int) ([]model.Call, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Call), args.Error(1)
}

func (m *mockCallRepo) CountByParticipant(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockCallRepo) SetOffer(ctx context.Context, id, sdp string) error {
	args := m.Called(ctx, id, sdp)
	return args.Error(0)
}

func (m *mockCallRepo) SetAnswer(ctx context.Context, id, sdp string) error {
	args := m.Called(ctx, id, sdp)
	return args.Error(0)
}

func (m *mockCallRepo) AppendICECandidate(ctx context.Context, id string, candidate []byte) error {
	args := m.Called(ctx, id, candidate)
	return args.Error(0)
}

func (m *mockCallRepo) SetRecordingStarted(ctx context.Context, id, streamID string) error {
	args := m.Called(ctx, id, streamID)
	return args.Error(0)
}

func (m *mockCallRepo) ClaimRecordingStop(ctx context.Context, id string) (*model.Call, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Call), args.Error(1)
}

func (m *mockCallRepo) SetRecordingCompleted(ctx context.Context, id, url, key string, size int64) error {
	args := m.Called(ctx, id, url, key, size)
	return args.Error(0)
}

func (m *mockCallRepo) SetRecordingFailed(ctx context.Context, id, errorMessage string) error {
	args := m.Called(ctx, id, errorMessage)
	return args.Error(0)
}

func (m *mockCallRepo) SetRecordingNone(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *mockCallRepo) MarkStaleMissed(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// Mock user repository

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) TouchLastSeen(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Mock message repository

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) FindConversation(ctx context.Context, userID, peerID int64, limit, offset int) ([]model.Message, error) {
	args := m.Called(ctx, userID, peerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockMessageRepo) CountConversation(ctx context.Context, userID, peerID int64) (int, error) {
	args := m.Called(ctx, userID, peerID)
	return args.Int(0), args.Error(1)
}

func (m *mockMessageRepo) MarkDelivered(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockMessageRepo) MarkConversationRead(ctx context.Context, userID, peerID int64) (int64, error) {
	args := m.Called(ctx, userID, peerID)
	return args.Get(0).(int64), args.Error(1)
}

// Mock media controller

type mockMediaController struct {
	mock.Mock
}

func (m *mockMediaController) CreateStream(ctx context.Context, streamID string, record bool) error {
	args := m.Called(ctx, streamID, record)
	return args.Error(0)
}

func (m *mockMediaController) StopStream(ctx context.Context, streamID string) error {
	args := m.Called(ctx, streamID)
	return args.Error(0)
}

func (m *mockMediaController) DeleteStream(ctx context.Context, streamID string) error {
	args := m.Called(ctx, streamID)
	return args.Error(0)
}

func (m *mockMediaController) DownloadArtifact(ctx context.Context, streamID, name string) ([]byte, error) {
	args := m.Called(ctx, streamID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Mock object store

type mockObjectStore struct {
	mock.Mock
}

func (m *mockObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockObjectStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, key, expiry)
	return args.String(0), args.Error(1)
}

func (m *mockObjectStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// Mock enhancer

type mockEnhancer struct {
	mock.Mock
}

func (m *mockEnhancer) Enhance(ctx context.Context, data []byte, contentType string) ([]byte, error) {
	args := m.Called(ctx, data, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Fake recorder that records invocations without goroutine races.

type fakeRecorder struct {
	mu     sync.Mutex
	starts []string
	stops  []string
}

func (r *fakeRecorder) Start(call *model.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, call.ID)
}

func (r *fakeRecorder) Stop(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, callID)
}

func (r *fakeRecorder) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts)
}

func (r *fakeRecorder) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stops)
}

// Fake registry backed by in-memory recording clients.

type recordingClient struct {
	userID int64
	mu     sync.Mutex
	events []hub.Event
}

func (c *recordingClient) UserID() int64 { return c.userID }

func (c *recordingClient) Send(event hub.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return true
}

func (c *recordingClient) Close() {}

func (c *recordingClient) eventsOfType(eventType string) []hub.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []hub.Event
	for _, event := range c.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type fakeRegistry struct {
	mu      sync.Mutex
	clients map[int64]*recordingClient
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{clients: make(map[int64]*recordingClient)}
}

func (r *fakeRegistry) connect(userID int64) *recordingClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	client := &recordingClient{userID: userID}
	r.clients[userID] = client
	return client
}

func (r *fakeRegistry) Lookup(userID int64) hub.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[userID]; ok {
		return client
	}
	return nil
}

func (r *fakeRegistry) Online() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}
