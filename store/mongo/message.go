package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/history"
	"github.com/xraph/history/id"
	"github.com/xraph/history/message"
)

// UpsertMessage inserts or overwrites the message with the same
// (ClientID, Topic, MessageID). A stored document with a later timestamp
// is kept.
func (s *Store) UpsertMessage(ctx context.Context, m *message.Message) error {
	if m.ID.IsNil() {
		m.ID = id.NewMessageID()
	}

	_, err := s.mdb.NewUpdate((*messageModel)(nil)).
		Filter(upsertFilter(m)).
		SetUpdate(upsertUpdate(m)).
		Upsert().
		Exec(ctx)
	if err != nil {
		// The ts bound excluded a newer stored document, so the upsert tried
		// to insert over the unique key. The newer write stands.
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("history/mongo: upsert message: %w", err)
	}
	return nil
}

// upsertFilter matches the stored copy only when it is not newer than m.
func upsertFilter(m *message.Message) bson.M {
	return bson.M{
		"client_id":  m.ClientID,
		"topic":      m.Topic,
		"message_id": m.MessageID,
		"ts":         bson.M{"$lte": m.Timestamp},
	}
}

func upsertUpdate(m *message.Message) bson.M {
	set := bson.M{
		"message": m.Message,
		"method":  m.Method,
		"tag":     m.Tag,
		"ts":      m.Timestamp,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"_id": m.ID.String()},
	}
	if m.PublishedAt.IsZero() {
		update["$unset"] = bson.M{"published_at": ""}
	} else {
		set["published_at"] = m.PublishedAt
	}
	return update
}

// GetOrigin returns the first message in log order with the given topic and
// message id.
func (s *Store) GetOrigin(ctx context.Context, topic, messageID string) (*message.Message, error) {
	var m messageModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"topic": topic, "message_id": messageID}).
		Sort(logOrder(message.Forward)).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s/%s", history.ErrMessageNotFound, topic, messageID)
		}
		return nil, fmt.Errorf("history/mongo: get origin: %w", err)
	}
	return fromMessageModel(&m)
}

// ListMessages returns up to q.Limit messages of q.Topic in q.Direction
// order, one document per message id.
func (s *Store) ListMessages(ctx context.Context, q message.Query) ([]*message.Message, error) {
	var models []messageModel
	if err := listPipeline(s.mdb, q).Scan(ctx, &models); err != nil {
		return nil, fmt.Errorf("history/mongo: list messages: %w", err)
	}
	return fromMessageModels(models)
}

// listPipeline collapses the topic to the earliest copy of each message id,
// then applies the cursor bound, order and limit.
func listPipeline(mdb *mongodriver.MongoDB, q message.Query) *mongodriver.AggregateQuery {
	agg := mdb.NewAggregate(colMessages).
		Match(bson.M{"topic": q.Topic}).
		Sort(bson.D{
			{Key: "message_id", Value: 1},
			{Key: "ts", Value: 1},
			{Key: "client_id", Value: 1},
		}).
		Group(bson.M{"_id": "$message_id", "doc": bson.M{"$first": "$$ROOT"}}).
		Stage(bson.M{"$replaceRoot": bson.M{"newRoot": "$doc"}})
	if q.From != nil {
		agg = agg.Match(bson.M{"$or": cursorFilter(*q.From, q.Direction)})
	}
	agg = agg.Sort(logOrder(q.Direction))
	if q.Limit > 0 {
		agg = agg.Limit(int64(q.Limit))
	}
	return agg
}

// logOrder is the sort over (ts, message_id, client_id) in the direction.
func logOrder(dir message.Direction) bson.D {
	v := 1
	if dir == message.Backward {
		v = -1
	}
	return bson.D{
		{Key: "ts", Value: v},
		{Key: "message_id", Value: v},
		{Key: "client_id", Value: v},
	}
}

// cursorFilter expresses the inclusive compound bound on
// (ts, message_id, client_id) as a disjunction.
func cursorFilter(p message.Position, dir message.Direction) bson.A {
	strict, inclusive := "$gt", "$gte"
	if dir == message.Backward {
		strict, inclusive = "$lt", "$lte"
	}
	return bson.A{
		bson.M{"ts": bson.M{strict: p.Timestamp}},
		bson.M{"ts": p.Timestamp, "message_id": bson.M{strict: p.MessageID}},
		bson.M{"ts": p.Timestamp, "message_id": p.MessageID, "client_id": bson.M{inclusive: p.ClientID}},
	}
}
