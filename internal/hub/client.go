package hub

// Client is the send capability for one connected party. The registry and the
// services never see the underlying transport.
type Client interface {
	// UserID returns the authenticated user behind the connection.
	UserID() int64

	// Send queues an event for delivery without blocking. It returns false
	// when the client's buffer is full or the connection is shutting down;
	// the event is dropped in that case.
	Send(event Event) bool

	// Close shuts the connection down and releases its pumps.
	Close()
}
