package core

// clientEventBuffer bounds the per-client outbound queue. A client that
// cannot drain it fast enough loses events rather than stalling the hub.
const clientEventBuffer = 32

// Client is a connected transport endpoint as seen by the core layer.
// ConnID identifies the connection for the whole of its lifetime; the
// authenticated identity lives in the Registry, not here.
type Client struct {
	ConnID string
	Events chan *Event
}

// NewClient constructs a client with an initialized event channel.
func NewClient(connID string) *Client {
	return &Client{
		ConnID: connID,
		Events: make(chan *Event, clientEventBuffer),
	}
}

// deliver enqueues an event without blocking, dropping it if the client
// is a slow consumer. Fan-out is best-effort per recipient.
func (c *Client) deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
