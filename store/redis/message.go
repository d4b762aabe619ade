package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/history"
	"github.com/xraph/history/id"
	"github.com/xraph/history/message"
)

// messageModel is the JSON representation stored in Redis.
type messageModel struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"client_id"`
	Topic       string     `json:"topic"`
	MessageID   string     `json:"message_id"`
	Message     string     `json:"message"`
	Method      string     `json:"method,omitempty"`
	Tag         uint32     `json:"tag"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Timestamp   time.Time  `json:"ts"`
}

func toMessageModel(m *message.Message) *messageModel {
	out := &messageModel{
		ID:        m.ID.String(),
		ClientID:  m.ClientID,
		Topic:     m.Topic,
		MessageID: m.MessageID,
		Message:   m.Message,
		Method:    m.Method,
		Tag:       m.Tag,
		Timestamp: m.Timestamp.UTC(),
	}
	if !m.PublishedAt.IsZero() {
		pub := m.PublishedAt.UTC()
		out.PublishedAt = &pub
	}
	return out
}

func fromMessageModel(m *messageModel) (*message.Message, error) {
	msgID, err := id.ParseMessageID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse message ID %q: %w", m.ID, err)
	}
	out := &message.Message{
		ID:        msgID,
		ClientID:  m.ClientID,
		Topic:     m.Topic,
		MessageID: m.MessageID,
		Message:   m.Message,
		Method:    m.Method,
		Tag:       m.Tag,
		Timestamp: m.Timestamp.UTC(),
	}
	if m.PublishedAt != nil {
		out.PublishedAt = m.PublishedAt.UTC()
	}
	return out, nil
}

func (m *messageModel) member() string {
	return logMember(m.Timestamp, m.MessageID, m.ClientID)
}

// UpsertMessage inserts or overwrites the message with the same
// (ClientID, Topic, MessageID). The document and both index entries change
// in one transaction. A stored document with a later timestamp is kept.
func (s *Store) UpsertMessage(ctx context.Context, m *message.Message) error {
	key := messageKey(m.ClientID, m.Topic, m.MessageID)
	logKey := zTopicLog + m.Topic
	oKey := originKey(m.Topic, m.MessageID)

	err := s.watch(ctx, func(tx *goredis.Tx) error {
		var existing messageModel
		err := getWatched(ctx, tx, key, &existing)
		hasExisting := err == nil
		if err != nil && !isRedisNil(err) {
			return err
		}

		model := toMessageModel(m)
		if hasExisting && existing.Timestamp.After(model.Timestamp) {
			return nil
		}
		switch {
		case hasExisting:
			model.ID = existing.ID
		case m.ID.IsNil():
			model.ID = id.NewMessageID().String()
		}
		raw, err := json.Marshal(model)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			if hasExisting {
				p.ZRem(ctx, logKey, existing.member())
				p.ZRem(ctx, oKey, existing.member())
			}
			p.Set(ctx, key, raw, 0)
			p.ZAdd(ctx, logKey, goredis.Z{Score: 0, Member: model.member()})
			p.ZAdd(ctx, oKey, goredis.Z{Score: 0, Member: model.member()})
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("history/redis: upsert message: %w", err)
	}
	return nil
}

// GetOrigin returns the first message in log order with the given topic and
// message id.
func (s *Store) GetOrigin(ctx context.Context, topic, messageID string) (*message.Message, error) {
	members, err := s.rdb.ZRange(ctx, originKey(topic, messageID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("history/redis: get origin: %w", err)
	}
	notFound := fmt.Errorf("%w: %s/%s", history.ErrMessageNotFound, topic, messageID)
	if len(members) == 0 {
		return nil, notFound
	}

	msgs, err := s.loadMembers(ctx, topic, members)
	if err != nil {
		return nil, fmt.Errorf("history/redis: get origin: %w", err)
	}
	if len(msgs) == 0 {
		return nil, notFound
	}
	return msgs[0], nil
}

// ListMessages returns up to q.Limit messages of q.Topic in q.Direction
// order, one per message id. The log is scanned in batches and members that
// are not the earliest copy of their message id are dropped.
func (s *Store) ListMessages(ctx context.Context, q message.Query) ([]*message.Message, error) {
	logKey := zTopicLog + q.Topic
	backward := q.Direction == message.Backward

	bound := "-"
	if backward {
		bound = "+"
	}
	if q.From != nil {
		bound = "[" + logMember(q.From.Timestamp, q.From.MessageID, q.From.ClientID)
	}

	var members []string
	for {
		batch, err := s.rangeLog(ctx, logKey, bound, backward, int64(q.Limit))
		if err != nil {
			return nil, fmt.Errorf("history/redis: list messages: %w", err)
		}
		firsts, err := s.firstCopies(ctx, q.Topic, batch)
		if err != nil {
			return nil, fmt.Errorf("history/redis: list messages: %w", err)
		}
		members = append(members, firsts...)

		if q.Limit > 0 && len(members) >= q.Limit {
			members = members[:q.Limit]
			break
		}
		if q.Limit <= 0 || len(batch) < q.Limit {
			break
		}
		bound = "(" + batch[len(batch)-1]
	}

	msgs, err := s.loadMembers(ctx, q.Topic, members)
	if err != nil {
		return nil, fmt.Errorf("history/redis: list messages: %w", err)
	}
	return msgs, nil
}

// rangeLog reads up to count members from bound in the given direction.
// A count of zero reads to the end of the log.
func (s *Store) rangeLog(ctx context.Context, logKey, bound string, backward bool, count int64) ([]string, error) {
	if backward {
		by := &goredis.ZRangeBy{Min: "-", Max: bound, Count: count}
		return s.rdb.ZRevRangeByLex(ctx, logKey, by).Result()
	}
	by := &goredis.ZRangeBy{Min: bound, Max: "+", Count: count}
	return s.rdb.ZRangeByLex(ctx, logKey, by).Result()
}

// firstCopies keeps the members that head the origin set of their message
// id, preserving order.
func (s *Store) firstCopies(ctx context.Context, topic string, members []string) ([]string, error) {
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, member := range members {
		_, messageID, _, err := parseLogMember(member)
		if err != nil {
			return nil, err
		}
		keys[i] = originKey(topic, messageID)
	}

	cmds := make([]*goredis.StringSliceCmd, len(keys))
	if _, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.ZRange(ctx, key, 0, 0)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(members))
	for i, cmd := range cmds {
		if head := cmd.Val(); len(head) == 1 && head[0] == members[i] {
			out = append(out, members[i])
		}
	}
	return out, nil
}

// loadMembers fetches the documents behind log members, preserving order.
// Members whose document has vanished are skipped.
func (s *Store) loadMembers(ctx context.Context, topic string, members []string) ([]*message.Message, error) {
	out := make([]*message.Message, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(members))
	for _, member := range members {
		_, messageID, clientID, err := parseLogMember(member)
		if err != nil {
			return nil, err
		}
		keys = append(keys, messageKey(clientID, topic, messageID))
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var m messageModel
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		msg, err := fromMessageModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}
