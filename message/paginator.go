package message

import (
	"context"
	"fmt"
)

// Page is one page of history. NextID is empty when there are no further
// messages in the page's direction; otherwise it is the id of the first
// message of the next page.
type Page struct {
	Topic     string     `json:"topic"`
	Direction Direction  `json:"direction"`
	NextID    string     `json:"nextId,omitempty"`
	Messages  []*Message `json:"messages"`
}

// Paginator serves cursor pages over a Store.
type Paginator struct {
	store Store
}

// NewPaginator creates a Paginator.
func NewPaginator(store Store) *Paginator {
	return &Paginator{store: store}
}

// After returns up to count messages oldest first, starting at originID
// (inclusive) or the start of the topic when originID is empty.
func (p *Paginator) After(ctx context.Context, topic, originID string, count int) (*Page, error) {
	return p.page(ctx, topic, originID, count, Forward)
}

// Before returns up to count messages newest first, starting at originID
// (inclusive) or the end of the topic when originID is empty.
func (p *Paginator) Before(ctx context.Context, topic, originID string, count int) (*Page, error) {
	return p.page(ctx, topic, originID, count, Backward)
}

func (p *Paginator) page(ctx context.Context, topic, originID string, count int, dir Direction) (*Page, error) {
	if count < 1 {
		return nil, fmt.Errorf("message: count must be positive, got %d", count)
	}

	q := Query{Topic: topic, Direction: dir, Limit: count + 1}

	// An unknown origin is an error, never an empty page.
	if originID != "" {
		origin, err := p.store.GetOrigin(ctx, topic, originID)
		if err != nil {
			return nil, err
		}
		pos := origin.Position()
		q.From = &pos
	}

	msgs, err := p.store.ListMessages(ctx, q)
	if err != nil {
		return nil, err
	}

	page := &Page{Topic: topic, Direction: dir, Messages: msgs}

	// The extra row only marks where the next page starts.
	if len(msgs) > count {
		page.NextID = msgs[count].MessageID
		page.Messages = msgs[:count]
	}
	if page.Messages == nil {
		page.Messages = []*Message{}
	}
	return page, nil
}
