package model

import "time"

// EngagementState is the closed set of states the scorer can report.
type EngagementState string

const (
	StateAttentive  EngagementState = "Attentive"
	StateEngaged    EngagementState = "Engaged"
	StateNeutral    EngagementState = "Neutral"
	StateDistracted EngagementState = "Distracted"
	StateInactive   EngagementState = "Inactive"
	StateUnknown    EngagementState = "Unknown"
)

// RiskBucket classifies a state for dashboard grouping.
type RiskBucket string

const (
	RiskLow    RiskBucket = "low"
	RiskMedium RiskBucket = "medium"
	RiskHigh   RiskBucket = "high"
)

// stateInfo is the single canonical mapping from state to risk bucket and
// display color. All display logic reads from here instead of comparing
// string literals.
var stateInfo = map[EngagementState]struct {
	Risk  RiskBucket
	Color string
}{
	StateAttentive:  {RiskLow, "#10B981"},
	StateEngaged:    {RiskLow, "#10B981"},
	StateNeutral:    {RiskMedium, "#2563EB"},
	StateDistracted: {RiskHigh, "#F59E0B"},
	StateInactive:   {RiskHigh, "#F87171"},
	StateUnknown:    {RiskMedium, "#64748B"},
}

// ParseState normalizes a scorer-reported state string. Anything outside
// the closed set maps to Unknown.
func ParseState(s string) EngagementState {
	state := EngagementState(s)
	if _, ok := stateInfo[state]; ok {
		return state
	}
	return StateUnknown
}

// Risk returns the risk bucket for the state.
func (s EngagementState) Risk() RiskBucket {
	if info, ok := stateInfo[s]; ok {
		return info.Risk
	}
	return RiskMedium
}

// Color returns the display color for the state.
func (s EngagementState) Color() string {
	if info, ok := stateInfo[s]; ok {
		return info.Color
	}
	return stateInfo[StateUnknown].Color
}

// ScoreColor maps a 0-1 engagement score to the traffic-light status color
// shown on the teacher dashboard.
func ScoreColor(score float64) string {
	switch {
	case score >= 0.7:
		return "green"
	case score >= 0.4:
		return "yellow"
	default:
		return "red"
	}
}

// Clamp01 bounds a score or confidence value to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FrameFlags are per-observation anti-spoof heuristics.
type FrameFlags struct {
	NoFace        bool `json:"noFace" bson:"noFace"`
	MultipleFaces bool `json:"multipleFaces" bson:"multipleFaces"`
	LowConfidence bool `json:"lowConfidence" bson:"lowConfidence"`
}

// EngagementRecord is one persisted, immutable scored observation of one
// student at one instant. The timestamp is assigned server-side at
// ingestion time.
type EngagementRecord struct {
	ID              string          `json:"id" bson:"_id,omitempty"`
	SessionID       string          `json:"sessionId" bson:"sessionId"`
	StudentID       string          `json:"studentId" bson:"studentId"`
	ClassroomID     string          `json:"classroomId,omitempty" bson:"classroomId,omitempty"`
	EngagementScore float64         `json:"engagementScore" bson:"engagementScore"`
	State           EngagementState `json:"state" bson:"state"`
	Confidence      float64         `json:"confidence" bson:"confidence"`
	Timestamp       time.Time       `json:"timestamp" bson:"timestamp"`
	FrameFlags      FrameFlags      `json:"frameFlags" bson:"frameFlags"`
}

// Normalize clamps score and confidence and defaults the state.
func (r *EngagementRecord) Normalize() {
	r.EngagementScore = Clamp01(r.EngagementScore)
	r.Confidence = Clamp01(r.Confidence)
	if r.State == "" {
		r.State = StateUnknown
	}
}
