package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
)

type ConversationRepository struct {
	coll *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	coll := db.Collection("conversations")
	_, _ = coll.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			// one conversation per (post, participant pair)
			Keys:    bson.D{{Key: "post_id", Value: 1}, {Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("post_pair_idx"),
		},
		{
			Keys:    bson.D{{Key: "participant_ids", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("participant_updated_idx"),
		},
	})
	return &ConversationRepository{coll: coll}
}

// CreateOrGet inserts the conversation unless one already exists for its
// (post_id, pair_key). The unique index plus $setOnInsert makes concurrent
// duplicate attempts collapse onto the first successful creation. Returns the
// canonical conversation and whether this call created it.
func (r *ConversationRepository) CreateOrGet(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"post_id": conv.PostID, "pair_key": conv.PairKey}
	update := bson.M{"$setOnInsert": conv}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var out domain.Conversation
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return nil, false, err
	}
	return &out, out.ID == conv.ID, nil
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c domain.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"participant_ids": userID}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Conversation{}
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

// FindByPostAndPair returns every conversation for the pair sorted oldest
// first. More than one entry means duplicates predating the unique index;
// callers resolve to the first.
func (r *ConversationRepository) FindByPostAndPair(ctx context.Context, postID, pairKey string) ([]domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"post_id": postID, "pair_key": pairKey}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Conversation{}
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, convID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, convID, bson.M{
		"$set": bson.M{"unread_counts." + userID: 0},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUnread bumps the counters for the given users with a single $inc,
// atomic at the storage layer so concurrent sends never lose updates.
func (r *ConversationRepository) IncrementUnread(ctx context.Context, convID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	inc := bson.M{}
	for _, id := range userIDs {
		inc["unread_counts."+id] = 1
	}
	_, err := r.coll.UpdateByID(ctx, convID, bson.M{"$inc": inc})
	return err
}

func (r *ConversationRepository) SetLastMessage(ctx context.Context, convID string, lm domain.LastMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.coll.UpdateByID(ctx, convID, bson.M{
		"$set": bson.M{"last_message": lm, "updated_at": lm.Timestamp},
	})
	return err
}

// SetRequestState records the denormalized workflow state used for quick
// conversation-list filtering.
func (r *ConversationRepository) SetRequestState(ctx context.Context, convID string, kind domain.RequestKind, requestID string, status domain.RequestStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	switch kind {
	case domain.KindClaim:
		set["has_claim_request"] = true
		set["claim_request_status"] = status
		if requestID != "" {
			set["claim_request_id"] = requestID
		}
	default:
		set["has_handover_request"] = true
		set["handover_request_status"] = status
		if requestID != "" {
			set["handover_request_id"] = requestID
		}
	}
	_, err := r.coll.UpdateByID(ctx, convID, bson.M{"$set": set})
	return err
}

func (r *ConversationRepository) Delete(ctx context.Context, convID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": convID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.coll.EstimatedDocumentCount(ctx)
}

// ListPage pages through all conversations by _id for audit scans.
func (r *ConversationRepository) ListPage(ctx context.Context, afterID string, limit int64) ([]domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if afterID != "" {
		filter["_id"] = bson.M{"$gt": afterID}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Conversation{}
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

func (r *ConversationRepository) Sample(ctx context.Context, n int64) ([]domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$sample", Value: bson.M{"size": n}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Conversation{}
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

// Exists reports whether the conversation document is present, used when
// hunting for orphaned message collections.
func (r *ConversationRepository) Exists(ctx context.Context, convID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": convID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Watch streams every change to conversations the user participates in. The
// returned subscription must be closed by the caller.
func (r *ConversationRepository) Watch(ctx context.Context, userID string) (*ConversationSubscription, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.participant_ids": userID}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := r.coll.Watch(streamCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	updates := make(chan domain.Conversation)
	go func() {
		defer close(updates)
		defer stream.Close(streamCtx)
		for stream.Next(streamCtx) {
			var ev struct {
				FullDocument domain.Conversation `bson:"fullDocument"`
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
	return NewConversationSubscription(updates, cancel), nil
}
