// Package realtime pushes message events to connected websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"geochat/models"
)

const (
	EventMessageSent    = "message_sent"
	EventMessageDeleted = "message_deleted"
)

// Event is what clients receive. It never carries message bodies; clients
// fetch the thread to read them.
type Event struct {
	Type       string    `json:"type"`
	MessageID  int64     `json:"message_id"`
	ThreadID   int64     `json:"thread_id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
}

type delivery struct {
	userIDs []int64
	payload []byte
}

type countRequest struct {
	userID int64
	resp   chan int
}

// Hub tracks connected clients per user. All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	count      chan countRequest
	done       chan struct{}

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		logger:     logger.With("component", "realtime"),
	}
}

// Run processes hub traffic until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for c := range set {
					close(c.send)
				}
				delete(h.clients, userID)
			}
			return
		case c := <-h.register:
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
		case c := <-h.unregister:
			h.remove(c)
		case d := <-h.deliver:
			for _, userID := range d.userIDs {
				for c := range h.clients[userID] {
					select {
					case c.send <- d.payload:
					default:
						h.logger.Warn("Dropping slow client", "user_id", userID)
						h.remove(c)
					}
				}
			}
		case req := <-h.count:
			req.resp <- len(h.clients[req.userID])
		}
	}
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// ClientCount reports how many connections userID has open. It returns 0 once the hub has stopped.
func (h *Hub) ClientCount(userID int64) int {
	req := countRequest{userID: userID, resp: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.resp
	case <-h.done:
		return 0
	}
}

// Notify queues ev for every connection of the given users. It never blocks;
// when the queue is full the event is dropped.
func (h *Hub) Notify(ev Event, userIDs ...int64) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal event", "type", ev.Type, "error", err)
		return
	}
	if len(userIDs) == 2 && userIDs[0] == userIDs[1] {
		userIDs = userIDs[:1]
	}
	select {
	case h.deliver <- delivery{userIDs: userIDs, payload: payload}:
	default:
		h.logger.Warn("Event queue full, dropping event", "type", ev.Type, "message_id", ev.MessageID)
	}
}

func (h *Hub) MessageSent(_ context.Context, m models.Message) {
	h.Notify(eventFor(EventMessageSent, m), m.SenderID, m.ReceiverID)
}

func (h *Hub) MessageDeleted(_ context.Context, m models.Message) {
	h.Notify(eventFor(EventMessageDeleted, m), m.SenderID, m.ReceiverID)
}

func eventFor(kind string, m models.Message) Event {
	return Event{
		Type:       kind,
		MessageID:  m.ID,
		ThreadID:   m.ThreadID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Timestamp:  m.Timestamp,
	}
}
