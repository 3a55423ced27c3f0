// Package server coordinates client admission, presence broadcast, chat
// fan-out, and connection cleanup for the gateway via the Hub type.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/presence-gateway/internal/presence"
)

// ErrHubClosed is returned by Join once the hub has started shutting down.
var ErrHubClosed = errors.New("server: hub closed")

// Hub owns the set of live, authenticated clients. All membership changes and
// chat dispatch run on the single Run goroutine, so the client set needs no
// lock and fan-out never races with join or leave.
type Hub struct {
	registry    *presence.Registry
	clients     map[*Client]struct{}
	join        chan *Client
	leave       chan *Client
	inbound     chan inboundMessage
	placeholder string
	metrics     *Metrics
	logger      zerolog.Logger
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewHub creates a hub over registry. Empty chat messages are replaced by
// placeholder before broadcast.
func NewHub(registry *presence.Registry, placeholder string, metrics *Metrics, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:    registry,
		clients:     make(map[*Client]struct{}),
		join:        make(chan *Client),
		leave:       make(chan *Client),
		inbound:     make(chan inboundMessage, 64),
		placeholder: placeholder,
		metrics:     metrics,
		logger:      logger.With().Str("component", "hub").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Join hands an authenticated client to the event loop. The client's record
// must already be in the registry.
func (h *Hub) Join(c *Client) error {
	select {
	case h.join <- c:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// Leave removes c and waits until its record has been deregistered. Calling
// it more than once, or after shutdown, is harmless.
func (h *Hub) Leave(c *Client) {
	select {
	case h.leave <- c:
	case <-h.done:
		return
	}

	select {
	case <-c.left:
	case <-h.done:
	}
}

func (h *Hub) dispatch(msg inboundMessage) {
	select {
	case h.inbound <- msg:
	case <-h.done:
	}
}

// Run starts the hub's main event loop. It should be called in its own
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.join:
			if client == nil {
				h.logger.Warn().Msg("Received nil client registration; skipping")
				continue
			}
			h.handleJoin(client)

		case client := <-h.leave:
			h.handleLeave(client)

		case msg := <-h.inbound:
			h.handleChat(msg)
		}
	}
}

func (h *Hub) handleJoin(c *Client) {
	h.clients[c] = struct{}{}
	h.metrics.activeConnections.Set(float64(h.registry.Len()))
	h.logger.Info().
		Str("conn_id", c.id).
		Str("subject", c.subjectID).
		Str("remote_addr", c.addr).
		Int("clients", len(h.clients)).
		Msg("Client joined")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()

	h.broadcastPresence()
}

func (h *Hub) handleLeave(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	h.remove(c)
	h.metrics.activeConnections.Set(float64(h.registry.Len()))
	h.logger.Info().
		Str("conn_id", c.id).
		Str("remote_addr", c.addr).
		Int("clients", len(h.clients)).
		Msg("Client left")

	h.broadcastPresence()
}

// remove drops c from the live set and the registry, then releases its
// write pump and any Leave waiter.
func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	h.registry.Deregister(c.id)
	close(c.send)
	close(c.left)
}

func (h *Hub) handleChat(msg inboundMessage) {
	name, err := h.registry.DisplayNameOf(msg.client.id)
	if err != nil {
		// The sender left between reading the frame and this dispatch.
		h.metrics.chatDropped.WithLabelValues("not_registered").Inc()
		h.logger.Debug().Err(err).Str("conn_id", msg.client.id).Msg("Dropping message from unregistered connection")
		return
	}

	text := msg.text
	if text == "" {
		text = h.placeholder
	}

	payload, err := encodeServerMessage(name, text)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode chat message")
		return
	}

	targets := h.fanOut(payload)
	h.metrics.chatBroadcasts.Inc()
	h.logger.Debug().Str("conn_id", msg.client.id).Int("targets", targets).Msg("Broadcast chat message")
}

func (h *Hub) broadcastPresence() {
	payload, err := encodeClientsUpdated(h.registry.Snapshot())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode presence snapshot")
		return
	}

	targets := h.fanOut(payload)
	h.metrics.presenceBroadcasts.Inc()
	h.logger.Debug().Int("targets", targets).Msg("Broadcast presence snapshot")
}

// getClientSnapshot returns a copy of the live client set.
func (h *Hub) getClientSnapshot() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// fanOut enqueues payload for every live client, the sender included, and
// returns how many accepted it. A client whose queue is full is evicted by
// closing its transport; its read pump then takes the normal leave path.
func (h *Hub) fanOut(payload []byte) int {
	delivered := 0
	for _, client := range h.getClientSnapshot() {
		if client.enqueue(payload) {
			delivered++
			continue
		}
		h.metrics.evictions.Inc()
		h.logger.Warn().Str("conn_id", client.id).Str("remote_addr", client.addr).Msg("Send queue full; evicting slow client")
		client.closeTransport()
	}
	return delivered
}

// shutdownClients closes every client's queue so its write pump sends a
// close frame, and discards all registry state.
func (h *Hub) shutdownClients() {
	h.logger.Info().Msg("Shutting down all client connections...")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		h.remove(client)
	}
	h.registry.Reset()
	h.metrics.activeConnections.Set(0)

	h.logger.Info().Int("clients", len(clients)).Msg("Closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info().Msg("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn().Msg("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
