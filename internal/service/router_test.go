package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/voxbridge/signal-server-go/internal/errors"
	"github.com/voxbridge/signal-server-go/internal/hub"
	"github.com/voxbridge/signal-server-go/internal/model"
)

type routerFixture struct {
	messageRepo *mockMessageRepo
	callRepo    *mockCallRepo
	registry    *fakeRegistry
	router      *SignalRouter
}

func newRouterFixture() *routerFixture {
	messageRepo := &mockMessageRepo{}
	callRepo := &mockCallRepo{}
	registry := newFakeRegistry()

	return &routerFixture{
		messageRepo: messageRepo,
		callRepo:    callRepo,
		registry:    registry,
		router:      NewSignalRouter(registry, messageRepo, callRepo),
	}
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name     string
		params   SendMessageParams
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "missing recipient",
			params:   SendMessageParams{Content: "hi"},
			wantCode: apperrors.ErrCodeMissingRequired,
		},
		{
			name:     "missing content",
			params:   SendMessageParams{ToUserID: 2},
			wantCode: apperrors.ErrCodeMissingRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()

			_, err := f.router.SendMessage(context.Background(), 1, tt.params)

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
			f.messageRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestSendMessageDeliversAndMarksDelivered(t *testing.T) {
	f := newRouterFixture()

	sender := f.registry.connect(1)
	recipient := f.registry.connect(2)

	stored := &model.Message{ID: "msg-1", FromUserID: 1, ToUserID: 2, Content: "hi", Type: model.MessageTypeText}
	f.messageRepo.On("Create", mock.Anything, mock.MatchedBy(func(p model.CreateMessageParams) bool {
		return p.FromUserID == 1 && p.ToUserID == 2 && p.Content == "hi" && p.Type == model.MessageTypeText && p.ID != ""
	})).Return(stored, nil)
	f.messageRepo.On("MarkDelivered", mock.Anything, "msg-1").Return(nil)

	msg, err := f.router.SendMessage(context.Background(), 1, SendMessageParams{
		ToUserID: 2,
		Content:  "hi",
	})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Len(t, sender.eventsOfType(hub.EventMessageSent), 1)
	assert.Len(t, recipient.eventsOfType(hub.EventMessageReceived), 1)
	f.messageRepo.AssertCalled(t, "MarkDelivered", mock.Anything, "msg-1")
}

func TestSendMessageOfflineRecipientStillPersists(t *testing.T) {
	f := newRouterFixture()

	sender := f.registry.connect(1)

	stored := &model.Message{ID: "msg-1", FromUserID: 1, ToUserID: 2, Content: "hi", Type: model.MessageTypeText}
	f.messageRepo.On("Create", mock.Anything, mock.Anything).Return(stored, nil)

	msg, err := f.router.SendMessage(context.Background(), 1, SendMessageParams{
		ToUserID: 2,
		Content:  "hi",
	})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Len(t, sender.eventsOfType(hub.EventMessageSent), 1)
	f.messageRepo.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything)
}

func TestRelaySignalOffer(t *testing.T) {
	f := newRouterFixture()

	callee := f.registry.connect(2)

	call := stubCall("call-1", 1, 2, model.CallStatusRinging)
	payload := json.RawMessage(`{"sdp":"v=0..."}`)

	f.callRepo.On("FindByID", mock.Anything, "call-1").Return(call, nil)
	f.callRepo.On("SetOffer", mock.Anything, "call-1", string(payload)).Return(nil)

	err := f.router.RelaySignal(context.Background(), 1, hub.EventSignalOffer, SignalParams{
		CallID:  "call-1",
		Payload: payload,
	})

	require.NoError(t, err)
	events := callee.eventsOfType(hub.EventSignalOffer)
	require.Len(t, events, 1)

	var relayed signalRelay
	require.NoError(t, json.Unmarshal(events[0].Data, &relayed))
	assert.Equal(t, "call-1", relayed.CallID)
	assert.Equal(t, int64(1), relayed.FromUserID)
	assert.JSONEq(t, string(payload), string(relayed.Payload))
}

func TestRelaySignalICEAppends(t *testing.T) {
	f := newRouterFixture()

	f.registry.connect(1)

	call := stubCall("call-1", 1, 2, model.CallStatusAccepted)
	payload := json.RawMessage(`{"candidate":"udp 1 ..."}`)

	f.callRepo.On("FindByID", mock.Anything, "call-1").Return(call, nil)
	f.callRepo.On("AppendICECandidate", mock.Anything, "call-1", []byte(payload)).Return(nil)

	err := f.router.RelaySignal(context.Background(), 2, hub.EventSignalICE, SignalParams{
		CallID:  "call-1",
		Payload: payload,
	})

	require.NoError(t, err)
	f.callRepo.AssertCalled(t, "AppendICECandidate", mock.Anything, "call-1", []byte(payload))
}

func TestRelaySignalRejectsOutsider(t *testing.T) {
	f := newRouterFixture()

	call := stubCall("call-1", 1, 2, model.CallStatusRinging)
	f.callRepo.On("FindByID", mock.Anything, "call-1").Return(call, nil)

	err := f.router.RelaySignal(context.Background(), 3, hub.EventSignalOffer, SignalParams{
		CallID:  "call-1",
		Payload: json.RawMessage(`{}`),
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.GetCode(err))
	f.callRepo.AssertNotCalled(t, "SetOffer", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelaySignalUnknownCall(t *testing.T) {
	f := newRouterFixture()

	f.callRepo.On("FindByID", mock.Anything, "nope").Return(nil, nil)

	err := f.router.RelaySignal(context.Background(), 1, hub.EventSignalAnswer, SignalParams{
		CallID:  "nope",
		Payload: json.RawMessage(`{}`),
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestRelaySignalUnknownType(t *testing.T) {
	f := newRouterFixture()

	call := stubCall("call-1", 1, 2, model.CallStatusRinging)
	f.callRepo.On("FindByID", mock.Anything, "call-1").Return(call, nil)

	err := f.router.RelaySignal(context.Background(), 1, "signal:telepathy", SignalParams{
		CallID:  "call-1",
		Payload: json.RawMessage(`{}`),
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.GetCode(err))
}
