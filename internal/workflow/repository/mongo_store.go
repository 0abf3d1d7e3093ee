package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// DefaultCollection is the collection holding workflow instances.
const DefaultCollection = "workflows"

// MongoStore keeps one document per workflow instance. Every mutation is a
// single guarded findOneAndUpdate, so the document is the unit of atomicity.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoStore creates a store over coll.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// EnsureIndexes creates the indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "idempotencyKey", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("idempotency_key_unique"),
		},
		{
			Keys:    bson.D{{Key: "communityId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("community_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status"),
		},
	})
	return mongoErr("ensure indexes", err)
}

func (s *MongoStore) Insert(ctx context.Context, inst *WorkflowInstance) error {
	doc := cloneInstance(inst)
	if doc.Steps == nil {
		doc.Steps = []StepEvent{}
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	_, err := s.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return mongoErr("insert", err)
}

func (s *MongoStore) Get(ctx context.Context, id string) (*WorkflowInstance, error) {
	return s.findOne(ctx, "get", bson.M{"_id": id})
}

func (s *MongoStore) GetByIdempotencyKey(ctx context.Context, key string) (*WorkflowInstance, error) {
	return s.findOne(ctx, "get by idempotency key", bson.M{"idempotencyKey": key})
}

func (s *MongoStore) findOne(ctx context.Context, op string, filter bson.M) (*WorkflowInstance, error) {
	var inst WorkflowInstance
	err := s.coll.FindOne(ctx, filter).Decode(&inst)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, mongoErr(op, err)
	}
	return &inst, nil
}

func (s *MongoStore) List(ctx context.Context, f Filter) ([]*WorkflowInstance, error) {
	filter := bson.M{}
	if f.CommunityID != "" {
		filter["communityId"] = f.CommunityID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongoErr("list", err)
	}
	var out []*WorkflowInstance
	if err := cursor.All(ctx, &out); err != nil {
		return nil, mongoErr("list", err)
	}
	return out, nil
}

func (s *MongoStore) Apply(ctx context.Context, id string, m Mutation) (Seq, error) {
	now := s.now()
	m = m.stamped(now)

	filter := bson.M{"_id": id}
	if len(m.Allowed) > 0 {
		filter["status"] = bson.M{"$in": m.Allowed}
	}
	if m.RequireNoResponse || m.Response != nil {
		filter["response"] = nil
	}

	set := bson.M{"updatedAt": now}
	if m.Event != nil {
		ts := m.Event.Timestamp.Truncate(time.Millisecond)
		event := bson.M{
			"stepName": bson.M{"$literal": m.Event.StepName},
			"timestamp": bson.M{"$max": bson.A{
				ts,
				bson.M{"$ifNull": bson.A{bson.M{"$last": "$steps.timestamp"}, ts}},
			}},
			"data": bson.M{"$literal": m.Event.Data},
		}
		set["steps"] = bson.M{"$concatArrays": bson.A{
			bson.M{"$ifNull": bson.A{"$steps", bson.A{}}},
			bson.A{event},
		}}
		set["currentStep"] = bson.M{"$literal": m.Event.StepName}
		set["stepCount"] = bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$stepCount", 0}}, 1}}
	}
	if m.Status != "" {
		set["status"] = bson.M{"$literal": m.Status}
	}
	if m.Response != nil {
		set["response"] = bson.M{"$literal": m.Response}
	}
	for k, v := range m.Metadata {
		set["metadata."+k] = bson.M{"$literal": v}
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"stepCount": 1})

	var updated struct {
		StepCount int64 `bson:"stepCount"`
	}
	err := s.coll.FindOneAndUpdate(ctx, filter, mongo.Pipeline{{{Key: "$set", Value: set}}}, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return NoSeq, s.guardFailure(ctx, id)
	}
	if err != nil {
		return NoSeq, mongoErr("apply", err)
	}
	if m.Event == nil {
		return NoSeq, nil
	}
	return Seq(updated.StepCount - 1), nil
}

func (s *MongoStore) guardFailure(ctx context.Context, id string) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return mongoErr("apply", err)
	}
	if n == 0 {
		return ErrInstanceNotFound
	}
	return ErrPreconditionFailed
}

func (s *MongoStore) Append(ctx context.Context, id string, ev StepEvent) (Seq, error) {
	return s.Apply(ctx, id, Mutation{Event: &ev})
}

// Read streams steps through an aggregation cursor rather than loading the
// whole document.
func (s *MongoStore) Read(ctx context.Context, id string) iter.Seq2[StepEvent, error] {
	return func(yield func(StepEvent, error) bool) {
		cursor, err := s.coll.Aggregate(ctx, mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"_id": id}}},
			{{Key: "$unwind", Value: "$steps"}},
			{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$steps"}}},
		})
		if err != nil {
			yield(StepEvent{}, mongoErr("read", err))
			return
		}
		defer cursor.Close(context.WithoutCancel(ctx))

		n := 0
		for cursor.Next(ctx) {
			var ev StepEvent
			if err := cursor.Decode(&ev); err != nil {
				yield(StepEvent{}, fmt.Errorf("read: decode step: %w", err))
				return
			}
			n++
			if !yield(ev, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(StepEvent{}, mongoErr("read", err))
			return
		}
		if n == 0 {
			if err := s.guardFailure(ctx, id); errors.Is(err, ErrInstanceNotFound) || IsRetryable(err) {
				yield(StepEvent{}, err)
			}
		}
	}
}

func (s *MongoStore) Close(context.Context) error { return nil }

func mongoErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if e := classifyContextErr(op, err); e != nil {
		return e
	}
	if mongo.IsTimeout(err) {
		return &StorageError{Op: op, Kind: ErrStorageTimeout, Cause: err}
	}
	var sel topology.ServerSelectionError
	if mongo.IsNetworkError(err) || errors.As(err, &sel) || errors.Is(err, mongo.ErrClientDisconnected) {
		return &StorageError{Op: op, Kind: ErrStorageUnavailable, Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
