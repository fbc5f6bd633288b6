package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const sequenceColumns = `id, application_id, email, name, test_completed_at, sequence_stage,
	last_email_sent_at, link_clicked, link_clicked_at, created_at, updated_at`

func scanSequence(row interface{ Scan(...any) error }) (EmailSequence, error) {
	var i EmailSequence
	err := row.Scan(
		&i.ID,
		&i.ApplicationID,
		&i.Email,
		&i.Name,
		&i.TestCompletedAt,
		&i.SequenceStage,
		&i.LastEmailSentAt,
		&i.LinkClicked,
		&i.LinkClickedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func (q *Queries) listSequences(ctx context.Context, query string, args ...any) ([]EmailSequence, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EmailSequence
	for rows.Next() {
		i, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createEmailSequence = `
INSERT INTO email_sequences (application_id, email, name, test_completed_at)
VALUES ($1, $2, $3, $4)
RETURNING ` + sequenceColumns

type CreateEmailSequenceParams struct {
	ApplicationID   uuid.UUID
	Email           string
	Name            string
	TestCompletedAt time.Time
}

func (q *Queries) CreateEmailSequence(ctx context.Context, arg CreateEmailSequenceParams) (EmailSequence, error) {
	return scanSequence(q.db.QueryRowContext(ctx, createEmailSequence,
		arg.ApplicationID,
		arg.Email,
		arg.Name,
		arg.TestCompletedAt,
	))
}

const getEmailSequenceByApplicationID = `SELECT ` + sequenceColumns + ` FROM email_sequences WHERE application_id = $1`

func (q *Queries) GetEmailSequenceByApplicationID(ctx context.Context, applicationID uuid.UUID) (EmailSequence, error) {
	return scanSequence(q.db.QueryRowContext(ctx, getEmailSequenceByApplicationID, applicationID))
}

const listDueEmailSequences = `
SELECT ` + sequenceColumns + `
FROM email_sequences
WHERE link_clicked = false AND sequence_stage IN (1, 2, 3)
ORDER BY test_completed_at`

func (q *Queries) ListDueEmailSequences(ctx context.Context) ([]EmailSequence, error) {
	return q.listSequences(ctx, listDueEmailSequences)
}

// Rows younger than two minutes are left to the submission request that is
// still activating them inline. Ordering by updated_at puts rows whose last
// attempt failed (see DeferEmailSequenceActivation) behind untried ones.
const listPendingActivations = `
SELECT ` + sequenceColumns + `
FROM email_sequences
WHERE link_clicked = false AND sequence_stage = 0
  AND created_at < now() - interval '2 minutes'
ORDER BY updated_at, created_at
LIMIT $1`

func (q *Queries) ListPendingActivations(ctx context.Context, limit int32) ([]EmailSequence, error) {
	return q.listSequences(ctx, listPendingActivations, limit)
}

const deferEmailSequenceActivation = `
UPDATE email_sequences
SET updated_at = now()
WHERE id = $1 AND sequence_stage = 0`

// DeferEmailSequenceActivation records a failed activation attempt by moving
// the row to the back of the pending queue.
func (q *Queries) DeferEmailSequenceActivation(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deferEmailSequenceActivation, id)
	return err
}

const activateEmailSequence = `
UPDATE email_sequences
SET sequence_stage = 1, updated_at = now()
WHERE id = $1 AND sequence_stage = 0 AND link_clicked = false
RETURNING ` + sequenceColumns

func (q *Queries) ActivateEmailSequence(ctx context.Context, id uuid.UUID) (EmailSequence, error) {
	return scanSequence(q.db.QueryRowContext(ctx, activateEmailSequence, id))
}

// Conditional on the stage the caller planned against: a concurrent cycle
// that already advanced the row makes this return sql.ErrNoRows.
const advanceEmailSequence = `
UPDATE email_sequences
SET sequence_stage = $3, last_email_sent_at = $4, updated_at = now()
WHERE id = $1 AND sequence_stage = $2 AND link_clicked = false
RETURNING ` + sequenceColumns

type AdvanceEmailSequenceParams struct {
	ID            uuid.UUID
	ExpectedStage int16
	NewStage      int16
	SentAt        time.Time
}

func (q *Queries) AdvanceEmailSequence(ctx context.Context, arg AdvanceEmailSequenceParams) (EmailSequence, error) {
	return scanSequence(q.db.QueryRowContext(ctx, advanceEmailSequence,
		arg.ID,
		arg.ExpectedStage,
		arg.NewStage,
		arg.SentAt,
	))
}

const markEmailSequenceClicked = `
UPDATE email_sequences
SET link_clicked = true, link_clicked_at = $2, updated_at = now()
WHERE application_id = $1 AND link_clicked = false
RETURNING ` + sequenceColumns

type MarkEmailSequenceClickedParams struct {
	ApplicationID uuid.UUID
	ClickedAt     time.Time
}

func (q *Queries) MarkEmailSequenceClicked(ctx context.Context, arg MarkEmailSequenceClickedParams) (EmailSequence, error) {
	return scanSequence(q.db.QueryRowContext(ctx, markEmailSequenceClicked, arg.ApplicationID, arg.ClickedAt))
}

const countSequencesByStage = `
SELECT sequence_stage, link_clicked, count(*)
FROM email_sequences
GROUP BY sequence_stage, link_clicked
ORDER BY sequence_stage, link_clicked`

type CountSequencesByStageRow struct {
	SequenceStage int16
	LinkClicked   bool
	Count         int64
}

func (q *Queries) CountSequencesByStage(ctx context.Context) ([]CountSequencesByStageRow, error) {
	rows, err := q.db.QueryContext(ctx, countSequencesByStage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountSequencesByStageRow
	for rows.Next() {
		var i CountSequencesByStageRow
		if err := rows.Scan(&i.SequenceStage, &i.LinkClicked, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
