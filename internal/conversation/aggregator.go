// Package conversation derives per-peer conversation summaries from the
// observer's message set. Summarize is pure; Aggregator keeps a live map in
// sync with a stream subscription.
package conversation

import (
	"sort"
	"time"

	"github.com/studygroup/internal/model"
)

// LastMessage is the newest resolved message of a conversation as shown in
// the conversation list.
type LastMessage struct {
	Body      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
	FromMe    bool      `json:"fromMe"`
	Seen      bool      `json:"seen"`
}

// Summary describes one conversation from the observer's point of view.
type Summary struct {
	PeerID      string       `json:"peerId"`
	LastMessage *LastMessage `json:"lastMessage"`
	UnreadCount int          `json:"unreadCount"`
}

// Summarize folds the observer's messages into one Summary per peer.
// Messages without a resolved server timestamp are skipped entirely: an
// optimistic local write must not surface in the list until the server
// assigns createdAt. Result is sorted by lastMessage recency, newest first.
func Summarize(selfID string, msgs []model.Message) []Summary {
	type acc struct {
		last   *model.Message
		unread int
	}
	byPeer := make(map[string]*acc)
	for i := range msgs {
		m := &msgs[i]
		if !m.Resolved() {
			continue
		}
		peer := m.PeerOf(selfID)
		if peer == selfID || peer == "" {
			// self-messages and foreign rows do not form conversations
			continue
		}
		a := byPeer[peer]
		if a == nil {
			a = &acc{}
			byPeer[peer] = a
		}
		if a.last == nil || m.CreatedAt.After(a.last.CreatedAt) ||
			(m.CreatedAt.Equal(a.last.CreatedAt) && m.ID > a.last.ID) {
			a.last = m
		}
		if m.RecipientID == selfID && m.SenderID == peer && !m.Seen {
			a.unread++
		}
	}

	out := make([]Summary, 0, len(byPeer))
	for peer, a := range byPeer {
		out = append(out, Summary{
			PeerID: peer,
			LastMessage: &LastMessage{
				Body:      a.last.Body,
				CreatedAt: a.last.CreatedAt,
				FromMe:    a.last.SenderID == selfID,
				Seen:      a.last.Seen,
			},
			UnreadCount: a.unread,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessage.CreatedAt, out[j].LastMessage.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].PeerID < out[j].PeerID
	})
	return out
}

// Aggregator maintains the observer's conversation map over a stream of
// message upserts. Each event is keyed by message id, so duplicate delivery
// (history replay overlapping live events) converges.
type Aggregator struct {
	selfID string
	byID   map[string]model.Message
}

func NewAggregator(selfID string) *Aggregator {
	return &Aggregator{
		selfID: selfID,
		byID:   make(map[string]model.Message),
	}
}

// Apply upserts a single message and returns the recomputed summaries.
func (a *Aggregator) Apply(m model.Message) []Summary {
	a.byID[m.ID] = m
	return a.snapshot()
}

func (a *Aggregator) snapshot() []Summary {
	msgs := make([]model.Message, 0, len(a.byID))
	for _, m := range a.byID {
		msgs = append(msgs, m)
	}
	return Summarize(a.selfID, msgs)
}
