package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"engageai/internal/model"
)

// In-memory doubles for the repository and cache interfaces. They mirror
// the Mongo implementations' observable behavior: nil for missing docs,
// targeted roster patches, sorted record listings.

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		r.nextID++
		s.ID = fmt.Sprintf("sess-%d", r.nextID)
	}
	if s.Students == nil {
		s.Students = []model.RosterEntry{}
	}
	if s.Flags == nil {
		s.Flags = []model.SessionFlag{}
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) get(id string) *model.Session {
	if s, ok := r.sessions[id]; ok {
		cp := *s
		cp.Students = append([]model.RosterEntry(nil), s.Students...)
		cp.Flags = append([]model.SessionFlag(nil), s.Flags...)
		return &cp
	}
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id), nil
}

func (r *fakeSessionRepo) FindActiveByID(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.get(id); s != nil && s.Status == model.SessionActive {
		return s, nil
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindActiveByCode(ctx context.Context, code string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.JoinCode == code && s.Status == model.SessionActive {
			return r.get(id), nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindActiveByTeacher(ctx context.Context, teacherID string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.TeacherID == teacherID && s.Status == model.SessionActive {
			return r.get(id), nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindActiveByClassroom(ctx context.Context, classroomID string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.ClassroomID == classroomID && s.Status == model.SessionActive {
			return r.get(id), nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) ActiveCodeExists(ctx context.Context, code string) (bool, error) {
	s, _ := r.FindActiveByCode(ctx, code)
	return s != nil, nil
}

func (r *fakeSessionRepo) EndActiveForClassroom(ctx context.Context, classroomID string, endTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ClassroomID == classroomID && s.Status == model.SessionActive {
			s.Status = model.SessionEnded
			t := endTime
			s.EndTime = &t
		}
	}
	return nil
}

func (r *fakeSessionRepo) MarkEnded(ctx context.Context, id string, endTime time.Time, summary *model.SessionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return errors.New("no such session")
	}
	s.Status = model.SessionEnded
	t := endTime
	s.EndTime = &t
	s.Summary = summary
	return nil
}

func (r *fakeSessionRepo) AddRosterEntry(ctx context.Context, sessionID string, entry model.RosterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return errors.New("no such session")
	}
	for _, e := range s.Students {
		if e.StudentID == entry.StudentID {
			return nil
		}
	}
	s.Students = append(s.Students, entry)
	return nil
}

func (r *fakeSessionRepo) ReactivateRosterEntry(ctx context.Context, sessionID, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return errors.New("no such session")
	}
	for i := range s.Students {
		if s.Students[i].StudentID == studentID {
			s.Students[i].IsActive = true
			s.Students[i].LeftAt = nil
		}
	}
	return nil
}

func (r *fakeSessionRepo) DeactivateRosterEntry(ctx context.Context, sessionID, studentID string, leftAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return errors.New("no such session")
	}
	for i := range s.Students {
		if s.Students[i].StudentID == studentID {
			s.Students[i].IsActive = false
			t := leftAt
			s.Students[i].LeftAt = &t
		}
	}
	return nil
}

func (r *fakeSessionRepo) AppendFlag(ctx context.Context, sessionID string, flag model.SessionFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return errors.New("no such session")
	}
	s.Flags = append(s.Flags, flag)
	return nil
}

func (r *fakeSessionRepo) ListActive(ctx context.Context) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for id, s := range r.sessions {
		if s.Status == model.SessionActive {
			out = append(out, r.get(id))
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) CountActive(ctx context.Context) (int64, error) {
	active, _ := r.ListActive(ctx)
	return int64(len(active)), nil
}

func (r *fakeSessionRepo) CountByTeacherSince(ctx context.Context, teacherID string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.TeacherID == teacherID && !s.StartTime.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) ListRecentByTeacher(ctx context.Context, teacherID string, limit int64) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for id, s := range r.sessions {
		if s.TeacherID == teacherID {
			out = append(out, r.get(id))
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ListEndedByClassroom(ctx context.Context, classroomID string, limit int64) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for id, s := range r.sessions {
		if s.ClassroomID == classroomID && s.Status == model.SessionEnded {
			out = append(out, r.get(id))
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) CountEndedByClassroom(ctx context.Context, classroomID string) (int64, error) {
	ended, _ := r.ListEndedByClassroom(ctx, classroomID, 0)
	return int64(len(ended)), nil
}

func (r *fakeSessionRepo) DistinctIDsByTeacherSince(ctx context.Context, teacherID string, since time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if s.TeacherID == teacherID && !s.StartTime.Before(since) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeSessionRepo) ListEndedPage(ctx context.Context, filter bson.M, skip, limit int64) ([]*model.Session, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := func(s *model.Session) bool {
		if s.Status != model.SessionEnded {
			return false
		}
		if teacherID, ok := filter["teacherId"].(string); ok && s.TeacherID != teacherID {
			return false
		}
		if idFilter, ok := filter["_id"].(bson.M); ok {
			if in, ok := idFilter["$in"].([]string); ok {
				found := false
				for _, id := range in {
					if id == s.ID {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			}
		}
		return true
	}

	var matched []*model.Session
	for id, s := range r.sessions {
		if allowed(s) {
			matched = append(matched, r.get(id))
		}
	}
	total := int64(len(matched))
	if skip >= total {
		return nil, total, nil
	}
	matched = matched[skip:]
	if limit > 0 && int64(len(matched)) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

type fakeEngagementRepo struct {
	mu      sync.Mutex
	records []*model.EngagementRecord
	nextID  int
	failing bool
}

func newFakeEngagementRepo() *fakeEngagementRepo {
	return &fakeEngagementRepo{}
}

func (r *fakeEngagementRepo) Create(ctx context.Context, record *model.EngagementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("store down")
	}
	if record.ID == "" {
		r.nextID++
		record.ID = fmt.Sprintf("rec-%d", r.nextID)
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	cp := *record
	r.records = append(r.records, &cp)
	return nil
}

func (r *fakeEngagementRepo) filter(keep func(*model.EngagementRecord) bool) []*model.EngagementRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.EngagementRecord
	for _, rec := range r.records {
		if keep(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out
}

func (r *fakeEngagementRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.EngagementRecord, error) {
	return r.filter(func(rec *model.EngagementRecord) bool { return rec.SessionID == sessionID }), nil
}

func (r *fakeEngagementRepo) ListBySessionSince(ctx context.Context, sessionID string, since time.Time) ([]*model.EngagementRecord, error) {
	return r.filter(func(rec *model.EngagementRecord) bool {
		return rec.SessionID == sessionID && !rec.Timestamp.Before(since)
	}), nil
}

func (r *fakeEngagementRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.EngagementRecord, error) {
	return r.filter(func(rec *model.EngagementRecord) bool { return rec.StudentID == studentID }), nil
}

func (r *fakeEngagementRepo) ListByStudentSince(ctx context.Context, studentID string, since time.Time) ([]*model.EngagementRecord, error) {
	return r.filter(func(rec *model.EngagementRecord) bool {
		return rec.StudentID == studentID && !rec.Timestamp.Before(since)
	}), nil
}

func (r *fakeEngagementRepo) ListByClassroomSince(ctx context.Context, classroomID string, since time.Time) ([]*model.EngagementRecord, error) {
	return r.filter(func(rec *model.EngagementRecord) bool {
		return rec.ClassroomID == classroomID && !rec.Timestamp.Before(since)
	}), nil
}

func (r *fakeEngagementRepo) ListBySessionsSince(ctx context.Context, sessionIDs []string, since time.Time) ([]*model.EngagementRecord, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	in := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		in[id] = true
	}
	return r.filter(func(rec *model.EngagementRecord) bool {
		return in[rec.SessionID] && !rec.Timestamp.Before(since)
	}), nil
}

func (r *fakeEngagementRepo) ListSince(ctx context.Context, since time.Time) ([]*model.EngagementRecord, error) {
	return r.filter(func(rec *model.EngagementRecord) bool { return !rec.Timestamp.Before(since) }), nil
}

func (r *fakeEngagementRepo) DistinctStudentsBySessionSince(ctx context.Context, sessionID string, since time.Time) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range r.filter(func(rec *model.EngagementRecord) bool {
		return rec.SessionID == sessionID && !rec.Timestamp.Before(since)
	}) {
		if !seen[rec.StudentID] {
			seen[rec.StudentID] = true
			out = append(out, rec.StudentID)
		}
	}
	return out, nil
}

func (r *fakeEngagementRepo) DistinctSessionsByStudent(ctx context.Context, studentID string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range r.filter(func(rec *model.EngagementRecord) bool { return rec.StudentID == studentID }) {
		if !seen[rec.SessionID] {
			seen[rec.SessionID] = true
			out = append(out, rec.SessionID)
		}
	}
	return out, nil
}

func (r *fakeEngagementRepo) CountByStudentBetween(ctx context.Context, studentID string, from, to time.Time) (int64, error) {
	matched := r.filter(func(rec *model.EngagementRecord) bool {
		return rec.StudentID == studentID && !rec.Timestamp.Before(from) && !rec.Timestamp.After(to)
	})
	return int64(len(matched)), nil
}

type fakeClassroomRepo struct {
	mu           sync.Mutex
	classrooms   map[string]*model.Classroom
	endsRecorded int
}

func newFakeClassroomRepo(classrooms ...*model.Classroom) *fakeClassroomRepo {
	r := &fakeClassroomRepo{classrooms: make(map[string]*model.Classroom)}
	for _, c := range classrooms {
		r.classrooms[c.ID] = c
	}
	return r
}

func (r *fakeClassroomRepo) GetByID(ctx context.Context, id string) (*model.Classroom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.classrooms[id], nil
}

func (r *fakeClassroomRepo) FindByTeacher(ctx context.Context, teacherID string) (*model.Classroom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.classrooms {
		if c.TeacherID == teacherID && c.IsActive {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeClassroomRepo) FindOwned(ctx context.Context, id, teacherID string) (*model.Classroom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.classrooms[id]; ok && c.TeacherID == teacherID {
		return c, nil
	}
	return nil, nil
}

func (r *fakeClassroomRepo) ListActive(ctx context.Context) ([]*model.Classroom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Classroom
	for _, c := range r.classrooms {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeClassroomRepo) RecordSessionEnd(ctx context.Context, id string, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endsRecorded++
	if c, ok := r.classrooms[id]; ok {
		c.Stats.TotalSessions++
		t := endedAt
		c.Stats.LastSessionDate = &t
	}
	return nil
}

type fakeUserRepo struct {
	users map[string]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.users[id], nil
}

func (r *fakeUserRepo) GetMany(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User)
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r *fakeUserRepo) CountByRole(ctx context.Context, role model.Role) (int64, error) {
	var n int64
	for _, u := range r.users {
		if u.Role == role && u.IsActive {
			n++
		}
	}
	return n, nil
}

func (r *fakeUserRepo) CountStudentsInClassroom(ctx context.Context, classroomID string) (int64, error) {
	var n int64
	for _, u := range r.users {
		if u.Role == model.RoleStudent && u.ClassroomID == classroomID && u.IsActive {
			n++
		}
	}
	return n, nil
}

type fakeCodeCache struct {
	mu    sync.Mutex
	codes map[string]string
	down  bool
}

func newFakeCodeCache() *fakeCodeCache {
	return &fakeCodeCache{codes: make(map[string]string)}
}

func (c *fakeCodeCache) Set(ctx context.Context, code, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errors.New("cache down")
	}
	c.codes[code] = sessionID
	return nil
}

func (c *fakeCodeCache) Get(ctx context.Context, code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return "", errors.New("cache down")
	}
	return c.codes[code], nil
}

func (c *fakeCodeCache) Exists(ctx context.Context, code string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return false, errors.New("cache down")
	}
	_, ok := c.codes[code]
	return ok, nil
}

func (c *fakeCodeCache) Delete(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.codes, code)
	return nil
}

type fakeLiveCache struct {
	mu     sync.Mutex
	scores map[string]map[string]float64
}

func newFakeLiveCache() *fakeLiveCache {
	return &fakeLiveCache{scores: make(map[string]map[string]float64)}
}

func (c *fakeLiveCache) SetScore(ctx context.Context, sessionID, studentID string, score float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scores[sessionID] == nil {
		c.scores[sessionID] = make(map[string]float64)
	}
	c.scores[sessionID][studentID] = score
	return nil
}

func (c *fakeLiveCache) Scores(ctx context.Context, sessionID string) (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64)
	for k, v := range c.scores[sessionID] {
		out[k] = v
	}
	return out, nil
}

func (c *fakeLiveCache) ActiveCount(ctx context.Context, sessionID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scores[sessionID]), nil
}

func (c *fakeLiveCache) Clear(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scores, sessionID)
	return nil
}

type broadcastCall struct {
	Channel string
	Event   string
	Payload interface{}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	calls  []broadcastCall
	closed []string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{}
}

func (b *fakeBroadcaster) record(channel, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{Channel: channel, Event: event, Payload: payload})
}

func (b *fakeBroadcaster) ToSession(sessionID, event string, payload interface{}) {
	b.record("session_"+sessionID, event, payload)
}

func (b *fakeBroadcaster) ToUser(userID, event string, payload interface{}) {
	b.record("user_"+userID, event, payload)
}

func (b *fakeBroadcaster) ToTeacher(teacherID, event string, payload interface{}) {
	b.record("teacher_"+teacherID, event, payload)
}

func (b *fakeBroadcaster) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, sessionID)
}

func (b *fakeBroadcaster) eventsFor(channel string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.calls {
		if strings.HasPrefix(c.Channel, channel) {
			out = append(out, c.Event)
		}
	}
	return out
}

type fakeScorer struct {
	result *ScorerResult
	err    error
}

func (s *fakeScorer) Score(ctx context.Context, frame []byte, studentID string) (*ScorerResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}
