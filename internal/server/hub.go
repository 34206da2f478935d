// internal/server/hub.go
package server

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/game"
)

// subscriberBuffer is how many frames a slow connection may fall behind
// before frames are dropped for it.
const subscriberBuffer = 128

// Subscriber receives the frames one connection is allowed to see.
type Subscriber struct {
	PlayerID string // empty for spectators
	out      chan Message
}

// Messages is closed when the subscriber is removed or the game is reclaimed.
func (s *Subscriber) Messages() <-chan Message { return s.out }

func (s *Subscriber) spectator() bool { return s.PlayerID == "" }

// Hub drains one session's event queue and fans each event out to its
// subscribers, filtered per viewer.
type Hub struct {
	session *game.Session

	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
	done   chan struct{}
}

// NewHub returns a hub for s. Run must be started for events to flow.
func NewHub(s *game.Session) *Hub {
	return &Hub{
		session: s,
		subs:    make(map[*Subscriber]struct{}),
		done:    make(chan struct{}),
	}
}

// Subscribe registers a player connection.
func (h *Hub) Subscribe(playerID string) *Subscriber {
	sub := &Subscriber{PlayerID: playerID, out: make(chan Message, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.out)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// SubscribeSpectator registers an omniscient connection.
func (h *Hub) SubscribeSpectator() *Subscriber {
	return h.Subscribe("")
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.out)
	}
}

// Done is closed once the hub has delivered its last event.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Run pumps events until the session's queue is closed by Destroy.
func (h *Hub) Run() {
	defer close(h.done)
	q := h.session.Events()
	for range q.Ready() {
		for _, ev := range q.Drain() {
			h.deliver(ev)
		}
	}
	for _, ev := range q.Drain() {
		h.deliver(ev)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		close(sub.out)
	}
	h.subs = nil
}

// deliver routes one event to every subscriber allowed to see it.
func (h *Hub) deliver(ev game.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		var (
			msg Message
			ok  bool
		)
		if sub.spectator() {
			msg, ok = spectatorMessage(ev)
		} else {
			viewer, found := h.viewer(sub.PlayerID, ev)
			if !found {
				continue
			}
			msg, ok = agentMessage(ev, viewer)
		}
		if !ok {
			continue
		}

		select {
		case sub.out <- msg:
		default:
			log.WithFields(log.Fields{
				"game":   h.session.ID,
				"player": sub.PlayerID,
				"type":   msg.Type,
			}).Warn("Subscriber lagging, dropping frame")
		}
	}
}

// viewer returns the player's current state. A destroyed session answers
// from the roster in the game_started payload when that is the event.
func (h *Hub) viewer(playerID string, ev game.Event) (engine.Player, bool) {
	if p, ok := h.session.Player(playerID); ok {
		return p, true
	}
	if gs, ok := ev.Payload.(game.GameStartedPayload); ok {
		for _, p := range gs.Players {
			if p.ID == playerID {
				return p, true
			}
		}
	}
	return engine.Player{}, false
}
