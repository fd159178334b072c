package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/voxbridge/signal-server-go/internal/errors"
	"github.com/voxbridge/signal-server-go/internal/hub"
	"github.com/voxbridge/signal-server-go/internal/model"
	"github.com/voxbridge/signal-server-go/internal/repository"
)

// ConnectionRegistry is the view of the hub the services need.
type ConnectionRegistry interface {
	Lookup(userID int64) hub.Client
	Online() []int64
}

// SignalRouter delivers chat messages and WebRTC signaling payloads to the
// correct peer. Delivery is fire-and-forget: an offline peer simply does not
// receive the event, there is no queue and no retry.
type SignalRouter struct {
	registry    ConnectionRegistry
	messageRepo repository.MessageRepository
	callRepo    repository.CallRepository
}

func NewSignalRouter(
	registry ConnectionRegistry,
	messageRepo repository.MessageRepository,
	callRepo repository.CallRepository,
) *SignalRouter {
	return &SignalRouter{
		registry:    registry,
		messageRepo: messageRepo,
		callRepo:    callRepo,
	}
}

// Deliver pushes an event to one user if connected. Returns false when the
// target is absent or its buffer is full.
func (r *SignalRouter) Deliver(userID int64, event hub.Event) bool {
	client := r.registry.Lookup(userID)
	if client == nil {
		log.Debug().Int64("userId", userID).Str("type", event.Type).Msg("target offline, dropping event")
		return false
	}
	return client.Send(event)
}

type SendMessageParams struct {
	ToUserID int64             `json:"toUserId"`
	Content  string            `json:"content"`
	Type     model.MessageType `json:"type"`
}

// SendMessage persists the message first, so "sent" is a durable fact, then
// echoes a confirmation to the sender and attempts real-time delivery to the
// peer. Delivery failure is not an error.
func (r *SignalRouter) SendMessage(ctx context.Context, fromUserID int64, params SendMessageParams) (*model.Message, error) {
	if params.ToUserID == 0 {
		return nil, apperrors.MissingRequired("toUserId")
	}
	if params.Content == "" {
		return nil, apperrors.MissingRequired("content")
	}
	if params.Type == "" {
		params.Type = model.MessageTypeText
	}

	msg, err := r.messageRepo.Create(ctx, model.CreateMessageParams{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   params.ToUserID,
		Content:    params.Content,
		Type:       params.Type,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("messageId", msg.ID).
		Int64("fromUserId", fromUserID).
		Int64("toUserId", params.ToUserID).
		Msg("message persisted")

	if event, err := hub.NewEvent(hub.EventMessageSent, msg); err == nil {
		r.Deliver(fromUserID, event)
	}

	if event, err := hub.NewEvent(hub.EventMessageReceived, msg); err == nil {
		if r.Deliver(params.ToUserID, event) {
			if err := r.messageRepo.MarkDelivered(ctx, msg.ID); err != nil {
				log.Warn().Err(err).Str("messageId", msg.ID).Msg("failed to mark message delivered")
			}
		}
	}

	return msg, nil
}

type SignalParams struct {
	CallID  string          `json:"callId"`
	Payload json.RawMessage `json:"payload"`
}

type signalRelay struct {
	CallID     string          `json:"callId"`
	FromUserID int64           `json:"fromUserId"`
	Payload    json.RawMessage `json:"payload"`
	At         time.Time       `json:"at"`
}

// RelaySignal persists the SDP/ICE payload on the call record and forwards it
// verbatim to the other participant. ICE candidates are append-only.
func (r *SignalRouter) RelaySignal(ctx context.Context, fromUserID int64, eventType string, params SignalParams) error {
	if params.CallID == "" {
		return apperrors.MissingRequired("callId")
	}

	call, err := r.callRepo.FindByID(ctx, params.CallID)
	if err != nil {
		return apperrors.Database(err)
	}
	if call == nil {
		return apperrors.NotFound("call")
	}
	if !call.HasParticipant(fromUserID) {
		return apperrors.InvalidRequest("not a participant of this call")
	}

	switch eventType {
	case hub.EventSignalOffer:
		err = r.callRepo.SetOffer(ctx, call.ID, string(params.Payload))
	case hub.EventSignalAnswer:
		err = r.callRepo.SetAnswer(ctx, call.ID, string(params.Payload))
	case hub.EventSignalICE:
		err = r.callRepo.AppendICECandidate(ctx, call.ID, params.Payload)
	default:
		return apperrors.InvalidRequest("unknown signal type")
	}
	if err != nil {
		return apperrors.Database(err)
	}

	event, err := hub.NewEvent(eventType, signalRelay{
		CallID:     call.ID,
		FromUserID: fromUserID,
		Payload:    params.Payload,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return apperrors.Internal("failed to encode signal event")
	}

	r.Deliver(call.OtherParticipant(fromUserID), event)
	return nil
}
