package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"engageai/internal/model"
)

// Pure rollup helpers for the aggregation engine. Everything here is
// recomputed on read from the record stream; nothing is cached.

// percent1 converts a 0-1 score to a percentage with one decimal.
func percent1(score float64) float64 {
	return math.Round(score*1000) / 10
}

// percent0 converts a 0-1 score to an integer percentage.
func percent0(score float64) int {
	return int(math.Round(score * 100))
}

// meanScore is the arithmetic mean of record scores, 0 for no records.
func meanScore(records []*model.EngagementRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.EngagementScore
	}
	return sum / float64(len(records))
}

// studentAverages groups records per student: mean score, frame count,
// dominant state (mode, ties broken by first appearance in the stream) and
// distinct session count. Sorted descending by average.
func studentAverages(records []*model.EngagementRecord) []model.StudentAverage {
	type agg struct {
		sum         float64
		count       int
		stateCounts map[model.EngagementState]int
		stateOrder  []model.EngagementState
		sessions    map[string]bool
	}

	byStudent := make(map[string]*agg)
	var order []string
	for _, r := range records {
		a, ok := byStudent[r.StudentID]
		if !ok {
			a = &agg{
				stateCounts: make(map[model.EngagementState]int),
				sessions:    make(map[string]bool),
			}
			byStudent[r.StudentID] = a
			order = append(order, r.StudentID)
		}
		a.sum += r.EngagementScore
		a.count++
		if _, seen := a.stateCounts[r.State]; !seen {
			a.stateOrder = append(a.stateOrder, r.State)
		}
		a.stateCounts[r.State]++
		a.sessions[r.SessionID] = true
	}

	out := make([]model.StudentAverage, 0, len(byStudent))
	for _, studentID := range order {
		a := byStudent[studentID]
		dominant := model.StateUnknown
		best := -1
		for _, state := range a.stateOrder {
			if a.stateCounts[state] > best {
				best = a.stateCounts[state]
				dominant = state
			}
		}
		out = append(out, model.StudentAverage{
			StudentID:        studentID,
			AvgEngagement:    percent1(a.sum / float64(a.count)),
			FrameCount:       a.count,
			DominantState:    dominant,
			SessionsAttended: len(a.sessions),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AvgEngagement > out[j].AvgEngagement
	})
	return out
}

// bucketKey identifies one bucket of a trend series.
type bucketKey struct {
	start time.Time
	label string
}

// bucketTrend groups records into buckets via keyFn and reports the mean
// score (as a one-decimal percentage) and the earliest timestamp per
// bucket, ascending by bucket start.
func bucketTrend(records []*model.EngagementRecord, keyFn func(time.Time) bucketKey) []model.TrendPoint {
	type agg struct {
		sum   float64
		count int
		first time.Time
		label string
	}

	buckets := make(map[time.Time]*agg)
	for _, r := range records {
		key := keyFn(r.Timestamp)
		a, ok := buckets[key.start]
		if !ok {
			a = &agg{first: r.Timestamp, label: key.label}
			buckets[key.start] = a
		}
		a.sum += r.EngagementScore
		a.count++
		if r.Timestamp.Before(a.first) {
			a.first = r.Timestamp
		}
	}

	starts := make([]time.Time, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	points := make([]model.TrendPoint, 0, len(starts))
	for _, start := range starts {
		a := buckets[start]
		points = append(points, model.TrendPoint{
			Time:       a.first,
			Label:      a.label,
			Engagement: percent1(a.sum / float64(a.count)),
		})
	}
	return points
}

// tenMinuteBucket keys a timestamp to its fixed 10-minute window.
func tenMinuteBucket(t time.Time) bucketKey {
	start := t.Truncate(10 * time.Minute)
	return bucketKey{start: start}
}

// dailyBucket keys a timestamp to its calendar day.
func dailyBucket(t time.Time) bucketKey {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return bucketKey{start: start, label: start.Format("2006-01-02")}
}

// isoWeekBucket keys a timestamp to its ISO week (Monday start).
func isoWeekBucket(t time.Time) bucketKey {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	y, m, d := t.AddDate(0, 0, 1-weekday).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	year, week := t.ISOWeek()
	return bucketKey{start: start, label: fmt.Sprintf("%d-W%02d", year, week)}
}

// stateDistribution counts records per state, descending by count with
// state name as the deterministic tiebreak.
func stateDistribution(records []*model.EngagementRecord) []model.StateCount {
	counts := make(map[model.EngagementState]int)
	for _, r := range records {
		counts[r.State]++
	}

	out := make([]model.StateCount, 0, len(counts))
	for state, count := range counts {
		out = append(out, model.StateCount{State: state, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].State < out[j].State
	})
	return out
}

// topN truncates an already-sorted student average list.
func topN(students []model.StudentAverage, n int) []model.StudentAverage {
	if len(students) <= n {
		return students
	}
	return students[:n]
}

// belowThreshold filters students under a percentage threshold.
func belowThreshold(students []model.StudentAverage, thresholdPercent float64) []model.StudentAverage {
	low := make([]model.StudentAverage, 0)
	for _, s := range students {
		if s.AvgEngagement < thresholdPercent {
			low = append(low, s)
		}
	}
	return low
}

// meanOfAverages averages the per-student percentages (one decimal).
func meanOfAverages(students []model.StudentAverage) float64 {
	if len(students) == 0 {
		return 0
	}
	var sum float64
	for _, s := range students {
		sum += s.AvgEngagement
	}
	return math.Round(sum/float64(len(students))*10) / 10
}
