package hub

import "encoding/json"

// Event is the envelope for everything pushed to a connected client and for
// everything a client sends up. Data stays opaque to the transport.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound event types.
const (
	EventPresence        = "presence"
	EventMessageSent     = "message:sent"
	EventMessageReceived = "message:received"
	EventCallIncoming    = "call:incoming"
	EventCallInitiated   = "call:initiated"
	EventCallResponse    = "call:response"
	EventCallResponded   = "call:responded"
	EventCallEnded       = "call:ended"
	EventCallNoAnswer    = "call:no-answer"
	EventCallMissed      = "call:missed"
	EventError           = "error"
)

// Inbound event types.
const (
	EventMessageSend  = "message:send"
	EventCallInitiate = "call:initiate"
	EventCallRespond  = "call:respond"
	EventCallEnd      = "call:end"
	EventSignalOffer  = "signal:offer"
	EventSignalAnswer = "signal:answer"
	EventSignalICE    = "signal:ice"
)

// NewEvent marshals data into an event envelope.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}
