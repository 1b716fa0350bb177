package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"engageai/internal/model"
)

// UserRepo is read-only: user CRUD belongs to the external collaborator.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetMany(ctx context.Context, ids []string) (map[string]*model.User, error)
	CountByRole(ctx context.Context, role model.Role) (int64, error)
	CountStudentsInClassroom(ctx context.Context, classroomID string) (int64, error)
}

type userRepo struct {
	collection *mongo.Collection
}

func NewUserRepo(db *mongo.Database) UserRepo {
	return &userRepo{collection: db.Collection("users")}
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetMany(ctx context.Context, ids []string) (map[string]*model.User, error) {
	users := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var list []*model.User
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	for _, u := range list {
		users[u.ID] = u
	}
	return users, nil
}

func (r *userRepo) CountByRole(ctx context.Context, role model.Role) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"role": role, "isActive": true})
}

func (r *userRepo) CountStudentsInClassroom(ctx context.Context, classroomID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"role":        model.RoleStudent,
		"classroomId": classroomID,
		"isActive":    true,
	})
}
