// Package sequence holds the drip-email decision logic. It is pure: no
// database, no network, no clock. The worker feeds it rows and the current
// time and executes whatever it returns.
package sequence

import (
	"time"

	"github.com/google/uuid"
)

// Stages. Stage 0 is the enrolment stage; only 1..3 are ever sent by the
// advancer.
const (
	StageEnrolled = 0
	StageFirst    = 1
	StageSecond   = 2
	StageFinal    = 3
)

// sinceTest is how long after quiz completion each stage's email is due.
var sinceTest = map[int]time.Duration{
	StageFirst:  6 * time.Hour,
	StageSecond: 12 * time.Hour,
	StageFinal:  24 * time.Hour,
}

// sinceLast is how long after the previous send a stage moves on to the
// next one. There is no entry for the final stage.
var sinceLast = map[int]time.Duration{
	StageFirst:  6 * time.Hour,
	StageSecond: 12 * time.Hour,
}

// State is the slice of an email_sequences row the decision needs.
type State struct {
	ID              uuid.UUID
	ApplicationID   uuid.UUID
	Email           string
	Name            string
	TestCompletedAt time.Time
	Stage           int
	LastEmailSentAt *time.Time // nil when nothing has been sent at this stage yet
	LinkClicked     bool
}

// Decision is the outcome of Decide for a single row.
type Decision struct {
	ShouldSend bool
	// NewStage is the stage whose email goes out, and the value persisted to
	// sequence_stage once the send succeeds.
	NewStage int
}

// Decide evaluates one row at now.
//
// The since-test rule fires only while the current stage has not been sent
// (LastEmailSentAt nil). The since-last rule is checked second and, when it
// fires, its NewStage replaces whatever the first rule chose.
func Decide(s State, now time.Time) Decision {
	d := Decision{NewStage: s.Stage}

	if s.LinkClicked || s.Stage < StageFirst || s.Stage > StageFinal {
		return d
	}

	if s.LastEmailSentAt == nil {
		if now.Sub(s.TestCompletedAt) >= sinceTest[s.Stage] {
			d.ShouldSend = true
			d.NewStage = s.Stage
		}
	}

	if s.LastEmailSentAt != nil {
		if wait, ok := sinceLast[s.Stage]; ok && now.Sub(*s.LastEmailSentAt) >= wait {
			d.ShouldSend = true
			d.NewStage = s.Stage + 1
		}
	}

	return d
}

// Send is one email the runner must deliver. On success the runner persists
// sequence_stage = NewStage and last_email_sent_at = SentAt, guarded on the
// row still being at State.Stage.
type Send struct {
	State    State
	NewStage int
	SentAt   time.Time
}

// Plan runs Decide over every row and returns the sends to perform, in input
// order. Rows that should not send are dropped.
func Plan(states []State, now time.Time) []Send {
	var sends []Send
	for _, s := range states {
		d := Decide(s, now)
		if !d.ShouldSend {
			continue
		}
		sends = append(sends, Send{State: s, NewStage: d.NewStage, SentAt: now})
	}
	return sends
}
