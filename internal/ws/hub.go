package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/studygroup/internal/conversation"
	"github.com/studygroup/internal/logger"
	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/presence"
	"github.com/studygroup/internal/stream"
)

// PeerSource перечисляет группы пользователя; presence-события уходят
// только участникам общих групп. *repository.GroupRepository удовлетворяет.
type PeerSource interface {
	ListForUser(ctx context.Context, userID string) ([]model.Group, error)
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	total   int

	maxConns    int
	sendBufSize int

	store    *stream.Store
	presence *presence.Tracker
	peers    PeerSource

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(store *stream.Store, tracker *presence.Tracker, peers PeerSource, maxConns, sendBufSize int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:     make(map[string]map[*Client]struct{}),
		maxConns:    maxConns,
		sendBufSize: sendBufSize,
		store:       store,
		presence:    tracker,
		peers:       peers,
		register:    make(chan *Client, 64),
		unregister:  make(chan *Client, 64),
		done:        make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	firstConn := len(h.clients[c.userID]) == 0
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Подписка: replay истории, затем live-апсерты. Каждое соединение
	// получает свой поток и свой агрегатор бесед.
	sub, err := h.store.Subscribe(ctx, c.userID)
	if err != nil {
		logger.Errorf("ws subscribe user=%s: %v", c.userID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to open message stream"})
	} else {
		c.sub = sub
		go h.streamPump(c, sub)
	}

	if firstConn {
		if err := h.presence.Foreground(ctx, c.userID); err != nil {
			logger.Errorf("ws set online user=%s: %v", c.userID, err)
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	lastClient := len(clients) == 0
	if lastClient {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()

	if lastClient {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.presence.Background(ctx, c.userID); err != nil {
			logger.Errorf("ws set offline user=%s: %v", c.userID, err)
		}
	}
}

// streamPump forwards subscription events to the client: the raw upsert
// first, then the recomputed conversation list. Exits when the subscription
// is cancelled (client close) or the event channel drains out.
func (h *Hub) streamPump(c *Client, sub *stream.Subscription) {
	agg := conversation.NewAggregator(c.userID)
	for m := range sub.Events() {
		h.sendToClient(c, OutgoingMessage{Type: EventMessage, Payload: m})
		h.sendToClient(c, OutgoingMessage{
			Type:    EventConversationUpdate,
			Payload: ConversationUpdatePayload{Conversations: agg.Apply(m)},
		})
	}
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg)
	case EventMarkSeen:
		h.handleMarkSeen(ctx, c, msg)
	case EventTyping:
		h.handleTyping(c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	if msg.To == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "to is required"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := h.store.Append(ctx, c.userID, msg.To, msg.Text)
	switch {
	case errors.Is(err, stream.ErrEmptyBody):
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "text is required"})
		return
	case errors.Is(err, stream.ErrRecipientNotFound):
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "recipient not found"})
		return
	case err != nil:
		logger.Errorf("ws send message user=%s to=%s: %v", c.userID, msg.To, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to send message"})
		return
	}
	// Сам месседж придёт отправителю через его подписку (upsert).

	if err := h.presence.Touch(ctx, c.userID); err != nil {
		logger.Errorf("ws touch activity user=%s: %v", c.userID, err)
	}
}

func (h *Hub) handleMarkSeen(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleMarkSeen", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch {
	case msg.PeerID != "":
		if _, err := h.store.MarkConversationSeen(ctx, c.userID, msg.PeerID); err != nil {
			logger.Errorf("ws mark conversation seen user=%s peer=%s: %v", c.userID, msg.PeerID, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to mark seen"})
			return
		}
	case msg.MessageID != "":
		if err := h.store.MarkSeen(ctx, msg.MessageID, c.userID); err != nil {
			logger.Errorf("ws mark seen user=%s message=%s: %v", c.userID, msg.MessageID, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to mark seen"})
			return
		}
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "peerId or messageId required"})
		return
	}

	if err := h.presence.Touch(ctx, c.userID); err != nil {
		logger.Errorf("ws touch activity user=%s: %v", c.userID, err)
	}
}

func (h *Hub) handleTyping(c *Client, msg IncomingMessage) {
	peer := strings.TrimSpace(msg.To)
	if peer == "" || peer == c.userID {
		return
	}
	h.sendToUser(peer, OutgoingMessage{
		Type:    EventTyping,
		Payload: TypingPayload{UserID: c.userID},
	})
}

// DeliverNotification доставляет уведомление получателю в реальном времени.
// Вызывается движком fan-out после записи в ленту.
func (h *Hub) DeliverNotification(userID string, n model.Notification) {
	h.sendToUser(userID, OutgoingMessage{Type: EventNotification, Payload: n})
}

// BroadcastPresence рассылает смену статуса участникам общих групп.
// Хук для presence.Tracker.
func (h *Hub) BroadcastPresence(userID string, status model.PresenceStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	groups, err := h.peers.ListForUser(ctx, userID)
	if err != nil {
		logger.Errorf("ws presence broadcast user=%s: %v", userID, err)
		return
	}

	out := OutgoingMessage{
		Type:    EventPresence,
		Payload: PresencePayload{UserID: userID, Status: status},
	}
	notified := make(map[string]struct{}, 16)
	for _, g := range groups {
		for _, uid := range g.Members {
			if uid == userID {
				continue
			}
			if _, ok := notified[uid]; ok {
				continue
			}
			notified[uid] = struct{}{}
			h.sendToUser(uid, out)
		}
	}
}

func (h *Hub) sendToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
