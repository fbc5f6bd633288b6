package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
	"github.com/nyashahama/mba-scholarship-backend/internal/store"
)

// ─── TEST INFRASTRUCTURE ──────────────────────────────────────────────────────

// openTestDB returns a migrated *sql.DB from DATABASE_URL. Skips if the env
// var is not set so the test suite still passes in CI without a Postgres
// instance.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping store integration tests")
	}
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if err := pool.PingContext(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	if _, _, err := db.Migrate(pool); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

// submit creates an enrolled lead and registers cleanup. Links and
// sequences cascade from the application row.
func submit(t *testing.T, pool *sql.DB, st *store.Store, complete bool) store.SubmitApplicationResult {
	t.Helper()
	ctx := context.Background()

	res, err := st.SubmitApplication(ctx, store.SubmitApplicationParams{
		Name:         "Test Lead",
		Email:        "lead+" + uuid.NewString()[:8] + "@example.com",
		Phone:        "+27 82 000 0000",
		QuizAnswers:  json.RawMessage(`{"education":"bachelors"}`),
		QuizComplete: complete,
		QuizScore:    3,
		QuizMaxScore: 4,
		UtmSource:    "test",
		SubmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SubmitApplication: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.ExecContext(ctx, "DELETE FROM scholarship_applications WHERE id=$1", res.Application.ID)
	})
	return res
}

// ─── SubmitApplication ───────────────────────────────────────────────────────

func TestSubmitApplication_CompleteQuizEnrols(t *testing.T) {
	pool := openTestDB(t)
	st := store.New(pool, db.New(pool))

	res := submit(t, pool, st, true)

	if res.Link == nil || res.Sequence == nil {
		t.Fatalf("expected link and sequence, got link=%v sequence=%v", res.Link, res.Sequence)
	}
	if res.Link.Clicked {
		t.Error("new link should not be clicked")
	}
	if res.Sequence.SequenceStage != 0 {
		t.Errorf("sequence stage = %d, want 0", res.Sequence.SequenceStage)
	}
	if res.Sequence.LastEmailSentAt.Valid {
		t.Error("new sequence should have no last_email_sent_at")
	}
	if !res.Application.QuizCompletedAt.Valid {
		t.Error("quiz_completed_at should be set")
	}
}

func TestSubmitApplication_IncompleteQuizNotEnrolled(t *testing.T) {
	pool := openTestDB(t)
	st := store.New(pool, db.New(pool))

	res := submit(t, pool, st, false)

	if res.Link != nil || res.Sequence != nil {
		t.Error("incomplete quiz must not create link or sequence")
	}
	if res.Application.QuizCompletedAt.Valid {
		t.Error("quiz_completed_at should be NULL")
	}
	if !res.Application.QuizAnswers.Valid {
		t.Error("partial answers should still be stored")
	}
}

// ─── RecordClick ─────────────────────────────────────────────────────────────

func TestRecordClick_UnknownToken(t *testing.T) {
	pool := openTestDB(t)
	st := store.New(pool, db.New(pool))

	_, err := st.RecordClick(context.Background(), uuid.New(), time.Now())
	if !errors.Is(err, store.ErrTrackingLinkNotFound) {
		t.Errorf("expected ErrTrackingLinkNotFound, got %v", err)
	}
}

func TestRecordClick_MarksLinkAndSequence(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	q := db.New(pool)
	st := store.New(pool, q)

	res := submit(t, pool, st, true)
	if _, err := q.ActivateEmailSequence(ctx, res.Sequence.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Microsecond)
	click, err := st.RecordClick(ctx, res.Link.TrackingToken, at)
	if err != nil {
		t.Fatalf("RecordClick: %v", err)
	}
	if !click.FirstClick || !click.Link.Clicked {
		t.Errorf("got %+v, want first click", click)
	}

	seq, err := q.GetEmailSequenceByApplicationID(ctx, res.Application.ID)
	if err != nil {
		t.Fatalf("get sequence: %v", err)
	}
	if !seq.LinkClicked || !seq.LinkClickedAt.Valid {
		t.Error("sequence not marked clicked")
	}

	due, err := q.ListDueEmailSequences(ctx)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	for _, d := range due {
		if d.ID == seq.ID {
			t.Error("clicked sequence still listed as due")
		}
	}
}

func TestRecordClick_RepeatKeepsFirstTimestamp(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	q := db.New(pool)
	st := store.New(pool, q)

	res := submit(t, pool, st, true)

	first := time.Now().UTC().Truncate(time.Microsecond)
	if _, err := st.RecordClick(ctx, res.Link.TrackingToken, first); err != nil {
		t.Fatalf("first click: %v", err)
	}

	second, err := st.RecordClick(ctx, res.Link.TrackingToken, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("second click should not error: %v", err)
	}
	if second.FirstClick {
		t.Error("second click reported as first")
	}
	if !second.Link.ClickedAt.Time.Equal(first) {
		t.Errorf("clicked_at moved: got %v, want %v", second.Link.ClickedAt.Time, first)
	}

	seq, err := q.GetEmailSequenceByApplicationID(ctx, res.Application.ID)
	if err != nil {
		t.Fatalf("get sequence: %v", err)
	}
	if !seq.LinkClickedAt.Time.Equal(first) {
		t.Errorf("sequence link_clicked_at moved: got %v, want %v", seq.LinkClickedAt.Time, first)
	}
}

func TestRecordClick_ConcurrentClicksAllSucceed(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	q := db.New(pool)
	st := store.New(pool, q)

	res := submit(t, pool, st, true)

	const clicks = 8
	var wg sync.WaitGroup
	results := make([]store.ClickResult, clicks)
	errs := make([]error, clicks)
	start := make(chan struct{})
	for i := range clicks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = st.RecordClick(ctx, res.Link.TrackingToken, time.Now().UTC())
		}()
	}
	close(start)
	wg.Wait()

	first := 0
	for i, err := range errs {
		if err != nil {
			t.Fatalf("click %d: %v", i, err)
		}
		if results[i].FirstClick {
			first++
		}
		if !results[i].Link.Clicked {
			t.Errorf("click %d: returned link not clicked", i)
		}
	}
	if first != 1 {
		t.Errorf("expected exactly one first click, got %d", first)
	}

	seq, err := q.GetEmailSequenceByApplicationID(ctx, res.Application.ID)
	if err != nil {
		t.Fatalf("get sequence: %v", err)
	}
	if !seq.LinkClicked {
		t.Error("sequence not stopped after concurrent clicks")
	}
}

// ─── AdvanceEmailSequence guard ──────────────────────────────────────────────

func TestAdvanceEmailSequence_StaleStageLoses(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	q := db.New(pool)
	st := store.New(pool, q)

	res := submit(t, pool, st, true)
	if _, err := q.ActivateEmailSequence(ctx, res.Sequence.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	params := db.AdvanceEmailSequenceParams{
		ID:            res.Sequence.ID,
		ExpectedStage: 1,
		NewStage:      2,
		SentAt:        time.Now(),
	}
	if _, err := q.AdvanceEmailSequence(ctx, params); err != nil {
		t.Fatalf("first advance: %v", err)
	}
	if _, err := q.AdvanceEmailSequence(ctx, params); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second advance from stale stage: got %v, want sql.ErrNoRows", err)
	}
}
