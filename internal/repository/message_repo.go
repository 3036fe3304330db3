package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
)

type MessageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	coll := db.Collection("messages")
	_, _ = coll.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("conversation_created_idx"),
	})
	return &MessageRepository{coll: coll}
}

// Insert is idempotent on _id so a retried append never duplicates the
// message.
func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$setOnInsert": m},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *MessageRepository) Get(ctx context.Context, convID, msgID string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var m domain.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": msgID, "conversation_id": convID}).Decode(&m)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	return &m, nil
}

// ListRecent returns the newest limit messages in oldest-first order.
func (r *MessageRepository) ListRecent(ctx context.Context, convID string, limit int64) ([]domain.Message, error) {
	msgs, err := r.list(ctx, bson.M{"conversation_id": convID}, limit)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// ListBefore pages further back in time, newest-first within the page
// reversed to oldest-first. Returns fewer than limit when exhausted.
func (r *MessageRepository) ListBefore(ctx context.Context, convID string, before time.Time, limit int64) ([]domain.Message, error) {
	filter := bson.M{
		"conversation_id": convID,
		"created_at":      bson.M{"$lt": before},
	}
	msgs, err := r.list(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func (r *MessageRepository) list(ctx context.Context, filter bson.M, limit int64) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		if m.ReadBy == nil {
			m.ReadBy = []string{}
		}
		out = append(out, m)
	}
	return out, cur.Err()
}

func reverse(msgs []domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func (r *MessageRepository) Count(ctx context.Context, convID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.coll.CountDocuments(ctx, bson.M{"conversation_id": convID})
}

// DeleteOldest removes the n oldest messages of the conversation and returns
// how many went away.
func (r *MessageRepository) DeleteOldest(ctx context.Context, convID string, n int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(n).
		SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": convID}, opts)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	ids := []string{}
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return 0, err
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := r.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MessageRepository) AddReadBy(ctx context.Context, convID, msgID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": msgID, "conversation_id": convID},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead adds the user to read_by on every message not yet carrying it,
// in one batch.
func (r *MessageRepository) MarkAllRead(ctx context.Context, convID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.coll.UpdateMany(ctx,
		bson.M{"conversation_id": convID, "read_by": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	return err
}

func (r *MessageRepository) Delete(ctx context.Context, convID, msgID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": msgID, "conversation_id": convID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MessageRepository) DeleteConversation(ctx context.Context, convID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := r.coll.DeleteMany(ctx, bson.M{"conversation_id": convID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// UpdateRequest replaces the embedded request payload only while the stored
// status still matches expect, a compare-and-swap that keeps transitions
// one-directional under concurrent responders. Returns false when the guard
// did not match.
func (r *MessageRepository) UpdateRequest(ctx context.Context, convID, msgID string, expect domain.RequestStatus, data *domain.RequestData) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id":                 msgID,
			"conversation_id":     convID,
			"request_data.status": expect,
		},
		bson.M{"$set": bson.M{"request_data": data}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// DistinctConversationIDs lists every conversation id referenced by at least
// one message, for orphan detection.
func (r *MessageRepository) DistinctConversationIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	raw, err := r.coll.Distinct(ctx, "conversation_id", bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// IDsByConversation lists message ids for one conversation, oldest first.
func (r *MessageRepository) IDsByConversation(ctx context.Context, convID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": convID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	ids := []string{}
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

// Watch streams new and updated messages of one conversation.
func (r *MessageRepository) Watch(ctx context.Context, convID string) (*MessageSubscription, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.conversation_id": convID}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := r.coll.Watch(streamCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	updates := make(chan domain.Message)
	go func() {
		defer close(updates)
		defer stream.Close(streamCtx)
		for stream.Next(streamCtx) {
			var ev struct {
				FullDocument domain.Message `bson:"fullDocument"`
			}
			if err := stream.Decode(&ev); err != nil {
				continue
			}
			select {
			case updates <- ev.FullDocument:
			case <-streamCtx.Done():
				return
			}
		}
	}()
	return NewMessageSubscription(updates, cancel), nil
}
