// Package realtime pushes notification events to connected browsers.
//
// PIECES:
//   - Registry: which websocket clients are connected for which user. A user
//     may have several tabs open, so each id maps to a set of clients.
//   - Client: one websocket connection with its own writer goroutine.
//   - Broker: how an Envelope reaches the Registry. LocalBroker delivers in
//     process; RedisBroker goes through Redis Pub/Sub so every server
//     instance delivers to the clients it holds.
//   - Handler: the /ws endpoint.
//
// Live delivery is best effort. The persisted notification rows are the
// durable record; a client that is offline or too slow simply misses the push.
package realtime

import (
	"encoding/json"
	"sync"
)

// Server to client events.
const (
	EventFoodAvailable     = "foodAvailable"
	EventDonationAccepted  = "donationAccepted"
	EventDonationCompleted = "donationCompleted"
	EventError             = "error"
)

// Client to server events.
const (
	EventUserConnected     = "userConnected"
	EventNewFoodListing    = "newFoodListing"
	EventDonationConfirmed = "donationConfirmed"
)

// Frame is the wire format in both directions: {"event": ..., "data": ...}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is an event addressed to a set of users.
type Envelope struct {
	UserIDs []string        `json:"userIds"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Registry maps user ids to their live clients. It is not persisted: after a
// restart clients reconnect and register again.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]map[*Client]struct{})}
}

func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clients[c.userID] == nil {
		r.clients[c.userID] = make(map[*Client]struct{})
	}
	r.clients[c.userID][c] = struct{}{}
}

// Unregister removes c and closes its send queue. Safe to call more than once.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	if set := r.clients[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(r.clients, c.userID)
		}
	}
	r.mu.Unlock()

	c.close()
}

// Connected returns how many clients userID has open.
func (r *Registry) Connected(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[userID])
}

// Deliver queues env on every client of every addressed user and returns
// how many clients accepted it. Clients whose queue is full drop the frame.
func (r *Registry) Deliver(env Envelope) (int, error) {
	msg, err := json.Marshal(Frame{Event: env.Event, Data: env.Data})
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, id := range env.UserIDs {
		for c := range r.clients[id] {
			if c.enqueue(msg) {
				delivered++
			}
		}
	}
	return delivered, nil
}
