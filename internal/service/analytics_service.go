package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"engageai/internal/cache"
	"engageai/internal/model"
	"engageai/internal/repository"
)

const (
	topStudentCount    = 5
	historySessionCap  = 30
	weeklyTrendWeeks   = 12
	streakLookbackDays = 30
)

// AnalyticsService is the read side: every figure is recomputed from the
// record stream on request, so it reflects all ingested frames including
// degraded ones.
type AnalyticsService struct {
	sessions   repository.SessionRepo
	records    repository.EngagementRepo
	classrooms repository.ClassroomRepo
	users      repository.UserRepo
	live       cache.LiveCache

	// Percentage thresholds for flagging students.
	lowThresholdPercent    float64
	atRiskThresholdPercent float64
}

func NewAnalyticsService(
	sessions repository.SessionRepo,
	records repository.EngagementRepo,
	classrooms repository.ClassroomRepo,
	users repository.UserRepo,
	live cache.LiveCache,
	lowThreshold, atRiskThreshold float64,
) *AnalyticsService {
	return &AnalyticsService{
		sessions:               sessions,
		records:                records,
		classrooms:             classrooms,
		users:                  users,
		live:                   live,
		lowThresholdPercent:    lowThreshold * 100,
		atRiskThresholdPercent: atRiskThreshold * 100,
	}
}

// SessionAnalytics rolls up one session: class average, per-student table,
// 10-minute timeline, state distribution, top and low performers. Teachers
// see only their own sessions; admins see any.
func (s *AnalyticsService) SessionAnalytics(ctx context.Context, claims *model.Claims, sessionID string) (*model.SessionAnalytics, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session not found", ErrNotFound)
	}
	if claims.Role == model.RoleTeacher && session.TeacherID != claims.UserID {
		return nil, fmt.Errorf("%w: not your session", ErrForbidden)
	}
	if claims.Role == model.RoleStudent {
		return nil, fmt.Errorf("%w: students cannot view session analytics", ErrForbidden)
	}

	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	students := studentAverages(records)
	s.fillStudentNames(ctx, students)

	return &model.SessionAnalytics{
		Session:               session,
		ClassAverage:          meanOfAverages(students),
		Students:              students,
		Timeline:              bucketTrend(records, tenMinuteBucket),
		StateDistribution:     stateDistribution(records),
		TopStudents:           topN(students, topStudentCount),
		LowEngagementStudents: belowThreshold(students, s.lowThresholdPercent),
	}, nil
}

// StudentAnalytics rolls up one student across sessions. Students may only
// request their own.
func (s *AnalyticsService) StudentAnalytics(ctx context.Context, claims *model.Claims, studentID string) (*model.StudentAnalytics, error) {
	if claims.Role == model.RoleStudent && claims.UserID != studentID {
		return nil, fmt.Errorf("%w: students can only view their own analytics", ErrForbidden)
	}

	student, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	if student == nil {
		return nil, fmt.Errorf("%w: student not found", ErrNotFound)
	}

	records, err := s.records.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	history, err := s.sessionHistory(ctx, records)
	if err != nil {
		return nil, err
	}

	weekCutoff := time.Now().AddDate(0, 0, -7*weeklyTrendWeeks)
	var recent []*model.EngagementRecord
	for _, r := range records {
		if !r.Timestamp.Before(weekCutoff) {
			recent = append(recent, r)
		}
	}

	return &model.StudentAnalytics{
		Student:           student,
		OverallAverage:    percent1(meanScore(records)),
		SessionHistory:    history,
		WeeklyTrend:       bucketTrend(recent, isoWeekBucket),
		StateDistribution: stateDistribution(records),
	}, nil
}

// sessionHistory groups a student's records by session and annotates each
// group with session metadata, newest first, capped at historySessionCap.
func (s *AnalyticsService) sessionHistory(ctx context.Context, records []*model.EngagementRecord) ([]model.SessionHistoryEntry, error) {
	type agg struct {
		sum   float64
		count int
	}
	bySession := make(map[string]*agg)
	for _, r := range records {
		a, ok := bySession[r.SessionID]
		if !ok {
			a = &agg{}
			bySession[r.SessionID] = a
		}
		a.sum += r.EngagementScore
		a.count++
	}

	sessionIDs := make([]string, 0, len(bySession))
	for id := range bySession {
		sessionIDs = append(sessionIDs, id)
	}
	sessions, _, err := s.sessions.ListEndedPage(ctx, bson.M{"_id": bson.M{"$in": sessionIDs}}, 0, historySessionCap)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	history := make([]model.SessionHistoryEntry, 0, len(sessions))
	for _, session := range sessions {
		a := bySession[session.ID]
		if a == nil {
			continue
		}
		entry := model.SessionHistoryEntry{
			SessionID:     session.ID,
			Subject:       session.Subject,
			Title:         session.Title,
			Date:          session.StartTime,
			AvgEngagement: percent1(a.sum / float64(a.count)),
			FrameCount:    a.count,
		}
		if session.EndTime != nil {
			entry.DurationMS = session.EndTime.Sub(session.StartTime).Milliseconds()
		}
		history = append(history, entry)
	}
	return history, nil
}

// ClassAnalytics rolls up a classroom's recent ended sessions. Teachers must
// own the classroom; admins may view any.
func (s *AnalyticsService) ClassAnalytics(ctx context.Context, claims *model.Claims, classroomID string) (*model.ClassAnalytics, error) {
	if claims.Role == model.RoleStudent {
		return nil, fmt.Errorf("%w: students cannot view class analytics", ErrForbidden)
	}

	classroom, err := s.classrooms.GetByID(ctx, classroomID)
	if err != nil {
		return nil, fmt.Errorf("get classroom: %w", err)
	}
	if classroom == nil {
		return nil, fmt.Errorf("%w: classroom not found", ErrNotFound)
	}
	if claims.Role == model.RoleTeacher && classroom.TeacherID != claims.UserID {
		return nil, fmt.Errorf("%w: not your classroom", ErrForbidden)
	}

	recent, err := s.sessions.ListEndedByClassroom(ctx, classroomID, historySessionCap)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	total, err := s.sessions.CountEndedByClassroom(ctx, classroomID)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	sessionIDs := make([]string, 0, len(recent))
	for _, session := range recent {
		sessionIDs = append(sessionIDs, session.ID)
	}
	records, err := s.records.ListBySessionsSince(ctx, sessionIDs, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	students := studentAverages(records)
	s.fillStudentNames(ctx, students)

	return &model.ClassAnalytics{
		ClassAverage:          meanOfAverages(students),
		RecentSessions:        recent,
		Students:              students,
		TopStudents:           topN(students, topStudentCount),
		LowEngagementStudents: belowThreshold(students, s.lowThresholdPercent),
		TotalSessions:         int(total),
	}, nil
}

// TeacherDashboard backs the teacher landing page: today's session count,
// the live figure for the current session, at-risk students over the past
// week and a daily trend.
func (s *AnalyticsService) TeacherDashboard(ctx context.Context, claims *model.Claims) (*model.TeacherDashboard, error) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	todayCount, err := s.sessions.CountByTeacherSince(ctx, claims.UserID, startOfDay)
	if err != nil {
		return nil, fmt.Errorf("count today sessions: %w", err)
	}

	dashboard := &model.TeacherDashboard{TodaySessionCount: int(todayCount)}

	active, err := s.sessions.FindActiveByTeacher(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	if active != nil {
		dashboard.ActiveSessionID = active.ID
		scores, err := s.live.Scores(ctx, active.ID)
		if err != nil {
			log.Printf("analytics: live scores unavailable for session %s: %v", active.ID, err)
		} else if len(scores) > 0 {
			var sum float64
			for _, score := range scores {
				sum += score
			}
			dashboard.LiveEngagement = percent0(sum / float64(len(scores)))
		}
	}

	weekSessionIDs, err := s.sessions.DistinctIDsByTeacherSince(ctx, claims.UserID, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("list week sessions: %w", err)
	}
	weekRecords, err := s.records.ListBySessionsSince(ctx, weekSessionIDs, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("list week records: %w", err)
	}

	for _, avg := range studentAverages(weekRecords) {
		if avg.AvgEngagement < s.atRiskThresholdPercent {
			dashboard.StudentsAtRisk++
		}
	}
	dashboard.WeeklyTrend = bucketTrend(weekRecords, dailyBucket)

	recent, err := s.sessions.ListRecentByTeacher(ctx, claims.UserID, topStudentCount)
	if err != nil {
		return nil, fmt.Errorf("list recent sessions: %w", err)
	}
	dashboard.RecentSessions = recent

	return dashboard, nil
}

// StudentDashboard backs the student landing page: today's and weekly
// averages, a daily trend, the classroom's live session if any, state
// distribution and the attendance streak.
func (s *AnalyticsService) StudentDashboard(ctx context.Context, claims *model.Claims) (*model.StudentDashboard, error) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	weekRecords, err := s.records.ListByStudentSince(ctx, claims.UserID, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("list week records: %w", err)
	}

	var todayRecords []*model.EngagementRecord
	for _, r := range weekRecords {
		if !r.Timestamp.Before(startOfDay) {
			todayRecords = append(todayRecords, r)
		}
	}

	dashboard := &model.StudentDashboard{
		TodayEngagement:   percent0(meanScore(todayRecords)),
		WeeklyAverage:     percent0(meanScore(weekRecords)),
		WeeklyData:        bucketTrend(weekRecords, dailyBucket),
		StateDistribution: statePercentages(weekRecords),
	}

	if claims.ClassroomID != "" {
		active, err := s.sessions.FindActiveByClassroom(ctx, claims.ClassroomID)
		if err != nil {
			return nil, fmt.Errorf("find active session: %w", err)
		}
		dashboard.ActiveSession = active
	}

	streak, err := s.attendanceStreak(ctx, claims.UserID, now)
	if err != nil {
		return nil, err
	}
	dashboard.Streak = streak

	return dashboard, nil
}

// attendanceStreak counts consecutive days with at least one record, walking
// back from today. A quiet today does not break a streak that ran through
// yesterday.
func (s *AnalyticsService) attendanceStreak(ctx context.Context, studentID string, now time.Time) (int, error) {
	streak := 0
	for i := 0; i < streakLookbackDays; i++ {
		day := now.AddDate(0, 0, -i)
		from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		to := from.AddDate(0, 0, 1)

		n, err := s.records.CountByStudentBetween(ctx, studentID, from, to)
		if err != nil {
			return 0, fmt.Errorf("count day records: %w", err)
		}
		if n > 0 {
			streak++
		} else if i > 0 {
			break
		}
	}
	return streak, nil
}

// AdminDashboard is the fleet-wide rollup: platform counts, a weekly trend
// over all records and a per-classroom overview table.
func (s *AnalyticsService) AdminDashboard(ctx context.Context, claims *model.Claims) (*model.AdminDashboard, error) {
	if claims.Role != model.RoleAdmin {
		return nil, fmt.Errorf("%w: admin only", ErrForbidden)
	}

	totalStudents, err := s.users.CountByRole(ctx, model.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	totalTeachers, err := s.users.CountByRole(ctx, model.RoleTeacher)
	if err != nil {
		return nil, fmt.Errorf("count teachers: %w", err)
	}
	activeSessions, err := s.sessions.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active sessions: %w", err)
	}

	weekAgo := time.Now().AddDate(0, 0, -7)
	weekRecords, err := s.records.ListSince(ctx, weekAgo)
	if err != nil {
		return nil, fmt.Errorf("list week records: %w", err)
	}

	dashboard := &model.AdminDashboard{
		TotalStudents:     int(totalStudents),
		TotalTeachers:     int(totalTeachers),
		ActiveSessions:    int(activeSessions),
		OverallEngagement: percent0(meanScore(weekRecords)),
		WeeklyTrend:       bucketTrend(weekRecords, dailyBucket),
	}

	classrooms, err := s.classrooms.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}

	byClassroom := make(map[string][]*model.EngagementRecord)
	for _, r := range weekRecords {
		byClassroom[r.ClassroomID] = append(byClassroom[r.ClassroomID], r)
	}

	for _, classroom := range classrooms {
		overview := model.ClassroomOverview{
			ClassroomID:   classroom.ID,
			Name:          classroom.Name,
			Section:       classroom.Section,
			Subject:       classroom.Subject,
			StudentCount:  len(classroom.Students),
			AvgEngagement: percent0(meanScore(byClassroom[classroom.ID])),
			SessionCount:  classroom.Stats.TotalSessions,
		}
		if teacher, err := s.users.GetByID(ctx, classroom.TeacherID); err == nil && teacher != nil {
			overview.TeacherName = teacher.Name
		}
		dashboard.Classrooms = append(dashboard.Classrooms, overview)
	}

	return dashboard, nil
}

// History pages through ended sessions. Teachers see their own, students the
// sessions they produced records in, admins everything.
func (s *AnalyticsService) History(ctx context.Context, claims *model.Claims, page, limit int) (*model.SessionHistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	filter := bson.M{}
	switch claims.Role {
	case model.RoleTeacher:
		filter["teacherId"] = claims.UserID
	case model.RoleStudent:
		sessionIDs, err := s.records.DistinctSessionsByStudent(ctx, claims.UserID)
		if err != nil {
			return nil, fmt.Errorf("list attended sessions: %w", err)
		}
		filter["_id"] = bson.M{"$in": sessionIDs}
	case model.RoleAdmin:
	default:
		return nil, errors.New("unknown role")
	}

	skip := int64((page - 1) * limit)
	sessions, total, err := s.sessions.ListEndedPage(ctx, filter, skip, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return &model.SessionHistoryPage{
		Sessions: sessions,
		Pagination: model.Pagination{
			Total: int(total),
			Page:  page,
			Limit: limit,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

// statePercentages converts a distribution to integer percentages of the
// total record count.
func statePercentages(records []*model.EngagementRecord) []model.StatePercent {
	counts := stateDistribution(records)
	out := make([]model.StatePercent, 0, len(counts))
	for _, c := range counts {
		out = append(out, model.StatePercent{
			State:   c.State,
			Percent: int(math.Round(float64(c.Count) / float64(len(records)) * 100)),
		})
	}
	return out
}

// fillStudentNames annotates averages with identity fields. Lookup failures
// leave the IDs bare rather than failing the rollup.
func (s *AnalyticsService) fillStudentNames(ctx context.Context, students []model.StudentAverage) {
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.StudentID)
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		log.Printf("analytics: student lookup failed: %v", err)
		return
	}
	for i := range students {
		if u, ok := users[students[i].StudentID]; ok {
			students[i].Name = u.Name
			students[i].RollNumber = u.RollNumber
		}
	}
}
