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

// SessionRepo persists live and historical sessions. Roster and flag
// mutations are targeted patches, never whole-document rewrites, so
// concurrent joins cannot lose updates.
type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	FindActiveByID(ctx context.Context, id string) (*model.Session, error)
	FindActiveByCode(ctx context.Context, code string) (*model.Session, error)
	FindActiveByTeacher(ctx context.Context, teacherID string) (*model.Session, error)
	FindActiveByClassroom(ctx context.Context, classroomID string) (*model.Session, error)
	ActiveCodeExists(ctx context.Context, code string) (bool, error)
	EndActiveForClassroom(ctx context.Context, classroomID string, endTime time.Time) error
	MarkEnded(ctx context.Context, id string, endTime time.Time, summary *model.SessionSummary) error

	AddRosterEntry(ctx context.Context, sessionID string, entry model.RosterEntry) error
	ReactivateRosterEntry(ctx context.Context, sessionID, studentID string) error
	DeactivateRosterEntry(ctx context.Context, sessionID, studentID string, leftAt time.Time) error
	AppendFlag(ctx context.Context, sessionID string, flag model.SessionFlag) error

	ListActive(ctx context.Context) ([]*model.Session, error)
	CountActive(ctx context.Context) (int64, error)
	CountByTeacherSince(ctx context.Context, teacherID string, since time.Time) (int64, error)
	ListRecentByTeacher(ctx context.Context, teacherID string, limit int64) ([]*model.Session, error)
	ListEndedByClassroom(ctx context.Context, classroomID string, limit int64) ([]*model.Session, error)
	CountEndedByClassroom(ctx context.Context, classroomID string) (int64, error)
	DistinctIDsByTeacherSince(ctx context.Context, teacherID string, since time.Time) ([]string, error)
	ListEndedPage(ctx context.Context, filter bson.M, skip, limit int64) ([]*model.Session, int64, error)
}

type sessionRepo struct {
	collection *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{collection: db.Collection("sessions")}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	if session.ID == "" {
		session.ID = primitive.NewObjectID().Hex()
	}
	if session.Students == nil {
		session.Students = []model.RosterEntry{}
	}
	if session.Flags == nil {
		session.Flags = []model.SessionFlag{}
	}
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) findOne(ctx context.Context, filter bson.M) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *sessionRepo) FindActiveByID(ctx context.Context, id string) (*model.Session, error) {
	return r.findOne(ctx, bson.M{"_id": id, "status": model.SessionActive})
}

func (r *sessionRepo) FindActiveByCode(ctx context.Context, code string) (*model.Session, error) {
	return r.findOne(ctx, bson.M{"joinCode": code, "status": model.SessionActive})
}

func (r *sessionRepo) FindActiveByTeacher(ctx context.Context, teacherID string) (*model.Session, error) {
	return r.findOne(ctx, bson.M{"teacherId": teacherID, "status": model.SessionActive})
}

func (r *sessionRepo) FindActiveByClassroom(ctx context.Context, classroomID string) (*model.Session, error) {
	return r.findOne(ctx, bson.M{"classroomId": classroomID, "status": model.SessionActive})
}

func (r *sessionRepo) ActiveCodeExists(ctx context.Context, code string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"joinCode": code, "status": model.SessionActive})
	return n > 0, err
}

// EndActiveForClassroom force-ends abandoned sessions: status flips to ended
// with no summary computed.
func (r *sessionRepo) EndActiveForClassroom(ctx context.Context, classroomID string, endTime time.Time) error {
	_, err := r.collection.UpdateMany(ctx,
		bson.M{"classroomId": classroomID, "status": model.SessionActive},
		bson.M{"$set": bson.M{"status": model.SessionEnded, "endTime": endTime}},
	)
	return err
}

func (r *sessionRepo) MarkEnded(ctx context.Context, id string, endTime time.Time, summary *model.SessionSummary) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":  model.SessionEnded,
			"endTime": endTime,
			"summary": summary,
		}},
	)
	return err
}

// AddRosterEntry pushes a new roster entry only if the student is not
// already on the roster; concurrent joins of the same student resolve to a
// single entry.
func (r *sessionRepo) AddRosterEntry(ctx context.Context, sessionID string, entry model.RosterEntry) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": sessionID, "students.studentId": bson.M{"$ne": entry.StudentID}},
		bson.M{"$push": bson.M{"students": entry}},
	)
	return err
}

func (r *sessionRepo) ReactivateRosterEntry(ctx context.Context, sessionID, studentID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": sessionID, "students.studentId": studentID},
		bson.M{"$set": bson.M{"students.$.isActive": true, "students.$.leftAt": nil}},
	)
	return err
}

func (r *sessionRepo) DeactivateRosterEntry(ctx context.Context, sessionID, studentID string, leftAt time.Time) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": sessionID, "students.studentId": studentID},
		bson.M{"$set": bson.M{"students.$.isActive": false, "students.$.leftAt": leftAt}},
	)
	return err
}

func (r *sessionRepo) AppendFlag(ctx context.Context, sessionID string, flag model.SessionFlag) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$push": bson.M{"flags": flag}},
	)
	return err
}

func (r *sessionRepo) list(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*model.Session, error) {
	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) ListActive(ctx context.Context) ([]*model.Session, error) {
	return r.list(ctx, bson.M{"status": model.SessionActive})
}

func (r *sessionRepo) CountActive(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"status": model.SessionActive})
}

func (r *sessionRepo) CountByTeacherSince(ctx context.Context, teacherID string, since time.Time) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"teacherId": teacherID,
		"startTime": bson.M{"$gte": since},
	})
}

func (r *sessionRepo) ListRecentByTeacher(ctx context.Context, teacherID string, limit int64) ([]*model.Session, error) {
	opts := options.Find().SetSort(bson.M{"startTime": -1}).SetLimit(limit)
	return r.list(ctx, bson.M{"teacherId": teacherID}, opts)
}

func (r *sessionRepo) ListEndedByClassroom(ctx context.Context, classroomID string, limit int64) ([]*model.Session, error) {
	opts := options.Find().SetSort(bson.M{"startTime": -1}).SetLimit(limit)
	return r.list(ctx, bson.M{"classroomId": classroomID, "status": model.SessionEnded}, opts)
}

func (r *sessionRepo) CountEndedByClassroom(ctx context.Context, classroomID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"classroomId": classroomID, "status": model.SessionEnded})
}

func (r *sessionRepo) DistinctIDsByTeacherSince(ctx context.Context, teacherID string, since time.Time) ([]string, error) {
	raw, err := r.collection.Distinct(ctx, "_id", bson.M{
		"teacherId": teacherID,
		"startTime": bson.M{"$gte": since},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

func (r *sessionRepo) ListEndedPage(ctx context.Context, filter bson.M, skip, limit int64) ([]*model.Session, int64, error) {
	if filter == nil {
		filter = bson.M{}
	}
	filter["status"] = model.SessionEnded

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.M{"startTime": -1}).SetSkip(skip).SetLimit(limit)
	sessions, err := r.list(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}
