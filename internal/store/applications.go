package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
)

// ─── INPUT TYPES ─────────────────────────────────────────────────────────────

// SubmitApplicationParams is a validated, already-scored lead. QuizAnswers is
// nil for leads that skipped the quiz.
type SubmitApplicationParams struct {
	Name        string
	Email       string
	Phone       string
	QuizAnswers json.RawMessage
	// QuizComplete enrols the lead in the drip sequence. Score fields are
	// ignored unless QuizAnswers is set.
	QuizComplete bool
	QuizScore    int
	QuizMaxScore int
	UtmSource    string
	UtmMedium    string
	UtmCampaign  string
	SubmittedAt  time.Time
}

// SubmitApplicationResult carries every row written. Link and Sequence are
// nil when the lead was not enrolled.
type SubmitApplicationResult struct {
	Application db.ScholarshipApplication
	Link        *db.ApplicationLink
	Sequence    *db.EmailSequence
}

// ─── METHODS ─────────────────────────────────────────────────────────────────

// SubmitApplication writes the lead, and for a completed quiz also its
// tracking link and a stage-0 email sequence, in one transaction. A lead is
// never left enrolled without a link or linked without a sequence.
//
// The sequence starts at stage 0; the caller activates it once the
// quiz-results email has gone out.
func (s *Store) SubmitApplication(ctx context.Context, p SubmitApplicationParams) (SubmitApplicationResult, error) {
	var res SubmitApplicationResult

	hasQuiz := len(p.QuizAnswers) > 0

	err := s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		app, err := q.CreateApplication(ctx, db.CreateApplicationParams{
			Name:            p.Name,
			Email:           p.Email,
			Phone:           p.Phone,
			QuizAnswers:     pqtype.NullRawMessage{RawMessage: p.QuizAnswers, Valid: hasQuiz},
			QuizScore:       sql.NullInt32{Int32: int32(p.QuizScore), Valid: hasQuiz},
			QuizMaxScore:    sql.NullInt32{Int32: int32(p.QuizMaxScore), Valid: hasQuiz},
			QuizCompletedAt: sql.NullTime{Time: p.SubmittedAt, Valid: hasQuiz && p.QuizComplete},
			UtmSource:       nullString(p.UtmSource),
			UtmMedium:       nullString(p.UtmMedium),
			UtmCampaign:     nullString(p.UtmCampaign),
		})
		if err != nil {
			return fmt.Errorf("SubmitApplication: create application: %w", err)
		}
		res.Application = app

		if !hasQuiz || !p.QuizComplete {
			return nil
		}

		link, err := q.CreateApplicationLink(ctx, db.CreateApplicationLinkParams{
			ApplicationID: app.ID,
			TrackingToken: uuid.New(),
		})
		if err != nil {
			return fmt.Errorf("SubmitApplication: create link: %w", err)
		}
		res.Link = &link

		seq, err := q.CreateEmailSequence(ctx, db.CreateEmailSequenceParams{
			ApplicationID:   app.ID,
			Email:           app.Email,
			Name:            app.Name,
			TestCompletedAt: p.SubmittedAt,
		})
		if err != nil {
			return fmt.Errorf("SubmitApplication: create sequence: %w", err)
		}
		res.Sequence = &seq

		return nil
	})
	if err != nil {
		return SubmitApplicationResult{}, err
	}

	return res, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
