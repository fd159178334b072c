package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	apperrors "github.com/voxbridge/signal-server-go/internal/errors"
	"github.com/voxbridge/signal-server-go/internal/hub"
	"github.com/voxbridge/signal-server-go/internal/middleware"
	"github.com/voxbridge/signal-server-go/internal/service"
)

const dispatchTimeout = 10 * time.Second

// WSHandler upgrades authenticated requests and binds the connection into the
// presence registry. Inbound events are dispatched to the services; every
// failure is reported back to the sender as an error event instead of
// tearing down the connection.
type WSHandler struct {
	registry *hub.Registry
	router   *service.SignalRouter
	calls    *service.CallService
	upgrader websocket.Upgrader
}

func NewWSHandler(registry *hub.Registry, router *service.SignalRouter, calls *service.CallService) *WSHandler {
	return &WSHandler{
		registry: registry,
		router:   router,
		calls:    calls,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Tokens authenticate the connection; origin is not part of the
			// trust model for non-browser clients.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warn().Err(err).Int64("userId", user.ID).Msg("websocket upgrade failed")
		return
	}

	var since time.Time
	if user.LastSeenAt != nil {
		since = *user.LastSeenAt
	}

	client := hub.NewWSClient(user.ID, conn, h.dispatch, h.onClose)
	h.registry.Register(client)
	client.Run()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		h.calls.NotifyMissedCalls(ctx, user.ID, since)
	}()
}

func (h *WSHandler) dispatch(client hub.Client, event hub.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	userID := client.UserID()

	var err error
	switch event.Type {
	case hub.EventMessageSend:
		var params service.SendMessageParams
		if err = json.Unmarshal(event.Data, &params); err == nil {
			_, err = h.router.SendMessage(ctx, userID, params)
		}

	case hub.EventCallInitiate:
		var params service.InitiateCallParams
		if err = json.Unmarshal(event.Data, &params); err == nil {
			_, err = h.calls.Initiate(ctx, userID, params)
		}

	case hub.EventCallRespond:
		var params service.RespondCallParams
		if err = json.Unmarshal(event.Data, &params); err == nil {
			err = h.calls.Respond(ctx, userID, params)
		}

	case hub.EventCallEnd:
		var params service.EndCallParams
		if err = json.Unmarshal(event.Data, &params); err == nil {
			err = h.calls.End(ctx, userID, params)
		}

	case hub.EventSignalOffer, hub.EventSignalAnswer, hub.EventSignalICE:
		var params service.SignalParams
		if err = json.Unmarshal(event.Data, &params); err == nil {
			err = h.router.RelaySignal(ctx, userID, event.Type, params)
		}

	default:
		err = apperrors.InvalidRequest("unknown event type: " + event.Type)
	}

	if err != nil {
		h.sendError(client, event.Type, err)
	}
}

// onClose tears down the user's calls only when the closing connection was
// still the registered one. A handle orphaned by a reconnect closes without
// side effects; the user is live on the replacement connection.
func (h *WSHandler) onClose(client hub.Client) {
	if !h.registry.Unregister(client) {
		return
	}
	h.calls.HandleDisconnect(client.UserID())
}

func (h *WSHandler) sendError(client hub.Client, inReplyTo string, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	body := map[string]any{
		"code":      appErr.Code,
		"message":   appErr.Message,
		"inReplyTo": inReplyTo,
	}
	if appErr.Details != nil {
		body["details"] = appErr.Details
	}

	event, encodeErr := hub.NewEvent(hub.EventError, body)
	if encodeErr != nil {
		return
	}

	if !client.Send(event) {
		log.Warn().Int64("userId", client.UserID()).Msg("failed to deliver error event")
	}

	log.Debug().
		Int64("userId", client.UserID()).
		Str("inReplyTo", inReplyTo).
		Str("code", string(appErr.Code)).
		Msg("inbound event rejected")
}
