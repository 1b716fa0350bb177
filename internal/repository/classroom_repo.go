package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"engageai/internal/model"
)

// ClassroomRepo reads classrooms owned by the external CRUD service and
// writes back aggregate counters when sessions end.
type ClassroomRepo interface {
	GetByID(ctx context.Context, id string) (*model.Classroom, error)
	FindByTeacher(ctx context.Context, teacherID string) (*model.Classroom, error)
	FindOwned(ctx context.Context, id, teacherID string) (*model.Classroom, error)
	ListActive(ctx context.Context) ([]*model.Classroom, error)
	RecordSessionEnd(ctx context.Context, id string, endedAt time.Time) error
}

type classroomRepo struct {
	collection *mongo.Collection
}

func NewClassroomRepo(db *mongo.Database) ClassroomRepo {
	return &classroomRepo{collection: db.Collection("classrooms")}
}

func (r *classroomRepo) findOne(ctx context.Context, filter bson.M) (*model.Classroom, error) {
	var classroom model.Classroom
	err := r.collection.FindOne(ctx, filter).Decode(&classroom)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &classroom, nil
}

func (r *classroomRepo) GetByID(ctx context.Context, id string) (*model.Classroom, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *classroomRepo) FindByTeacher(ctx context.Context, teacherID string) (*model.Classroom, error) {
	return r.findOne(ctx, bson.M{"teacherId": teacherID, "isActive": true})
}

func (r *classroomRepo) FindOwned(ctx context.Context, id, teacherID string) (*model.Classroom, error) {
	return r.findOne(ctx, bson.M{"_id": id, "teacherId": teacherID})
}

func (r *classroomRepo) ListActive(ctx context.Context) ([]*model.Classroom, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"isActive": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var classrooms []*model.Classroom
	if err := cursor.All(ctx, &classrooms); err != nil {
		return nil, err
	}
	return classrooms, nil
}

func (r *classroomRepo) RecordSessionEnd(ctx context.Context, id string, endedAt time.Time) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"stats.totalSessions": 1},
			"$set": bson.M{"stats.lastSessionDate": endedAt},
		},
	)
	return err
}
