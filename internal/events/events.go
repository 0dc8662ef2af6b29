// Package events описывает доменные события очередей и их получателей.
package events

import (
	"context"
	"time"
)

type Type string

const (
	EntryJoined  Type = "entry.joined"
	EntryServed  Type = "entry.served"
	EntrySkipped Type = "entry.skipped"
	EntryLeft    Type = "entry.left"
	QueueCreated Type = "queue.created"
	QueueUpdated Type = "queue.updated"
	QueueDeleted Type = "queue.deleted"
)

// Event публикуется только после коммита транзакции.
type Event struct {
	Type        Type   `json:"type"`
	QueueID     string `json:"queueId"`
	EntryID     string `json:"entryId,omitempty"`
	Position    int    `json:"position,omitempty"`
	OldPosition int    `json:"oldPosition,omitempty"`
	// Waiting — число ожидающих после изменения, если известно.
	Waiting int       `json:"waiting,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher доставляет события; ошибки доставки не возвращаются вызывающему.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Multi рассылает событие всем получателям по очереди.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, e)
		}
	}
}

// Nop отбрасывает события.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
