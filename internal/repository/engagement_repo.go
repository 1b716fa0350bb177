package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"engageai/internal/model"
)

// EngagementRepo is the append-only store of scored observations. The
// ingestion pipeline writes; the aggregation engine reads. Records are never
// updated or deleted.
type EngagementRepo interface {
	Create(ctx context.Context, record *model.EngagementRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]*model.EngagementRecord, error)
	ListBySessionSince(ctx context.Context, sessionID string, since time.Time) ([]*model.EngagementRecord, error)
	ListByStudent(ctx context.Context, studentID string) ([]*model.EngagementRecord, error)
	ListByStudentSince(ctx context.Context, studentID string, since time.Time) ([]*model.EngagementRecord, error)
	ListByClassroomSince(ctx context.Context, classroomID string, since time.Time) ([]*model.EngagementRecord, error)
	ListBySessionsSince(ctx context.Context, sessionIDs []string, since time.Time) ([]*model.EngagementRecord, error)
	ListSince(ctx context.Context, since time.Time) ([]*model.EngagementRecord, error)
	DistinctStudentsBySessionSince(ctx context.Context, sessionID string, since time.Time) ([]string, error)
	DistinctSessionsByStudent(ctx context.Context, studentID string) ([]string, error)
	CountByStudentBetween(ctx context.Context, studentID string, from, to time.Time) (int64, error)
}

type engagementRepo struct {
	collection *mongo.Collection
}

func NewEngagementRepo(db *mongo.Database) EngagementRepo {
	return &engagementRepo{collection: db.Collection("engagement_records")}
}

func (r *engagementRepo) Create(ctx context.Context, record *model.EngagementRecord) error {
	if record.ID == "" {
		record.ID = primitive.NewObjectID().Hex()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, record)
	return err
}

func (r *engagementRepo) list(ctx context.Context, filter bson.M) ([]*model.EngagementRecord, error) {
	opts := options.Find().SetSort(bson.M{"timestamp": 1})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*model.EngagementRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *engagementRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.EngagementRecord, error) {
	return r.list(ctx, bson.M{"sessionId": sessionID})
}

func (r *engagementRepo) ListBySessionSince(ctx context.Context, sessionID string, since time.Time) ([]*model.EngagementRecord, error) {
	return r.list(ctx, bson.M{"sessionId": sessionID, "timestamp": bson.M{"$gte": since}})
}

func (r *engagementRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.EngagementRecord, error) {
	return r.list(ctx, bson.M{"studentId": studentID})
}

func (r *engagementRepo) ListByStudentSince(ctx context.Context, studentID string, since time.Time) ([]*model.EngagementRecord, error) {
	return r.list(ctx, bson.M{"studentId": studentID, "timestamp": bson.M{"$gte": since}})
}

func (r *engagementRepo) ListByClassroomSince(ctx context.Context, classroomID string, since time.Time) ([]*model.EngagementRecord, error) {
	return r.list(ctx, bson.M{"classroomId": classroomID, "timestamp": bson.M{"$gte": since}})
}

func (r *engagementRepo) ListBySessionsSince(ctx context.Context, sessionIDs []string, since time.Time) ([]*model.EngagementRecord, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, bson.M{
		"sessionId": bson.M{"$in": sessionIDs},
		"timestamp": bson.M{"$gte": since},
	})
}

func (r *engagementRepo) ListSince(ctx context.Context, since time.Time) ([]*model.EngagementRecord, error) {
	return r.list(ctx, bson.M{"timestamp": bson.M{"$gte": since}})
}

func (r *engagementRepo) DistinctStudentsBySessionSince(ctx context.Context, sessionID string, since time.Time) ([]string, error) {
	raw, err := r.collection.Distinct(ctx, "studentId", bson.M{
		"sessionId": sessionID,
		"timestamp": bson.M{"$gte": since},
	})
	if err != nil {
		return nil, err
	}
	return toStrings(raw), nil
}

func (r *engagementRepo) DistinctSessionsByStudent(ctx context.Context, studentID string) ([]string, error) {
	raw, err := r.collection.Distinct(ctx, "sessionId", bson.M{"studentId": studentID})
	if err != nil {
		return nil, err
	}
	return toStrings(raw), nil
}

func (r *engagementRepo) CountByStudentBetween(ctx context.Context, studentID string, from, to time.Time) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"studentId": studentID,
		"timestamp": bson.M{"$gte": from, "$lte": to},
	})
}

func toStrings(raw []interface{}) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
