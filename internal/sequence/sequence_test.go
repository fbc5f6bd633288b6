package sequence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func row(stage int, sinceTest time.Duration, last *time.Time) State {
	return State{
		ID:              uuid.New(),
		ApplicationID:   uuid.New(),
		Email:           "ada@example.com",
		Name:            "Ada Lovelace",
		TestCompletedAt: now.Add(-sinceTest),
		Stage:           stage,
		LastEmailSentAt: last,
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name      string
		state     State
		wantSend  bool
		wantStage int
	}{
		{"stage 1 exactly 6h after test", row(1, 6*time.Hour, nil), true, 1},
		{"stage 1 just under 6h", row(1, 6*time.Hour-time.Second, nil), false, 1},
		{"stage 2 at 12h unsent", row(2, 12*time.Hour, nil), true, 2},
		{"stage 3 at 24h unsent", row(3, 24*time.Hour, nil), true, 3},
		{"stage 3 at 23h unsent", row(3, 23*time.Hour, nil), false, 3},
		{"stage 1 sent exactly 6h ago advances", row(1, 12*time.Hour, ago(6*time.Hour)), true, 2},
		{"stage 1 sent 5h ago waits", row(1, 11*time.Hour, ago(5*time.Hour)), false, 1},
		{"stage 2 sent 12h ago advances", row(2, 30*time.Hour, ago(12*time.Hour)), true, 3},
		{"stage 2 test 13h, sent 30m ago", row(2, 13*time.Hour, ago(30*time.Minute)), false, 2},
		{"stage 3 sent is terminal", row(3, 500*time.Hour, ago(400*time.Hour)), false, 3},
		{"stage 0 never sends", row(0, 100*time.Hour, nil), false, 0},
		{"stage 4 never sends", row(4, 100*time.Hour, ago(100*time.Hour)), false, 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.state, now)
			assert.Equal(t, tc.wantSend, d.ShouldSend)
			assert.Equal(t, tc.wantStage, d.NewStage)
		})
	}
}

func TestDecide_ClickedRowsNeverSend(t *testing.T) {
	for stage := 0; stage <= 4; stage++ {
		for _, last := range []*time.Time{nil, ago(time.Hour), ago(1000 * time.Hour)} {
			s := row(stage, 1000*time.Hour, last)
			s.LinkClicked = true
			assert.False(t, Decide(s, now).ShouldSend, "stage %d last %v", stage, last)
		}
	}
}

func TestDecide_FullSequence(t *testing.T) {
	s := row(1, 0, nil)
	start := s.TestCompletedAt
	var sent []int

	// walk forward an hour at a time for three days, applying each send
	for h := 0; h <= 72; h++ {
		at := start.Add(time.Duration(h) * time.Hour)
		d := Decide(s, at)
		if !d.ShouldSend {
			continue
		}
		sent = append(sent, d.NewStage)
		s.Stage = d.NewStage
		s.LastEmailSentAt = &at
	}

	assert.Equal(t, []int{1, 2, 3}, sent)
	assert.Equal(t, StageFinal, s.Stage)
}

func TestPlan(t *testing.T) {
	clicked := row(1, 10*time.Hour, nil)
	clicked.LinkClicked = true
	due := row(1, 10*time.Hour, nil)
	advancing := row(2, 40*time.Hour, ago(13*time.Hour))
	waiting := row(2, 13*time.Hour, ago(30*time.Minute))

	sends := Plan([]State{clicked, due, waiting, advancing}, now)

	require.Len(t, sends, 2)
	assert.Equal(t, due.ID, sends[0].State.ID)
	assert.Equal(t, 1, sends[0].NewStage)
	assert.Equal(t, advancing.ID, sends[1].State.ID)
	assert.Equal(t, 3, sends[1].NewStage)
	for _, s := range sends {
		assert.Equal(t, now, s.SentAt)
	}
}

func TestPlan_Empty(t *testing.T) {
	assert.Empty(t, Plan(nil, now))
}
