package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const scheduledEmailColumns = `id, email, subject, content, scheduled_for, status, sent_at, error_message, created_at`

func scanScheduledEmail(row interface{ Scan(...any) error }) (ScheduledEmail, error) {
	var i ScheduledEmail
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Subject,
		&i.Content,
		&i.ScheduledFor,
		&i.Status,
		&i.SentAt,
		&i.ErrorMessage,
		&i.CreatedAt,
	)
	return i, err
}

func (q *Queries) listScheduledEmails(ctx context.Context, query string, args ...any) ([]ScheduledEmail, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ScheduledEmail
	for rows.Next() {
		i, err := scanScheduledEmail(rows)
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

// One row per recipient, inserted in a single statement.
const createScheduledEmails = `
INSERT INTO scheduled_emails (email, subject, content, scheduled_for)
SELECT recipient, $2, $3, $4 FROM unnest($1::text[]) AS recipient
RETURNING ` + scheduledEmailColumns

type CreateScheduledEmailsParams struct {
	Emails       []string
	Subject      string
	Content      string
	ScheduledFor time.Time
}

func (q *Queries) CreateScheduledEmails(ctx context.Context, arg CreateScheduledEmailsParams) ([]ScheduledEmail, error) {
	return q.listScheduledEmails(ctx, createScheduledEmails,
		pq.Array(arg.Emails),
		arg.Subject,
		arg.Content,
		arg.ScheduledFor,
	)
}

const listDueScheduledEmails = `
SELECT ` + scheduledEmailColumns + `
FROM scheduled_emails
WHERE status = 'pending' AND scheduled_for <= $1
ORDER BY scheduled_for
LIMIT $2`

type ListDueScheduledEmailsParams struct {
	Now   time.Time
	Limit int32
}

func (q *Queries) ListDueScheduledEmails(ctx context.Context, arg ListDueScheduledEmailsParams) ([]ScheduledEmail, error) {
	return q.listScheduledEmails(ctx, listDueScheduledEmails, arg.Now, arg.Limit)
}

const listScheduledEmails = `
SELECT ` + scheduledEmailColumns + `
FROM scheduled_emails
WHERE ($1::scheduled_email_status IS NULL OR status = $1)
ORDER BY scheduled_for DESC
LIMIT $2 OFFSET $3`

type ListScheduledEmailsParams struct {
	Status sql.NullString
	Limit  int32
	Offset int32
}

func (q *Queries) ListScheduledEmails(ctx context.Context, arg ListScheduledEmailsParams) ([]ScheduledEmail, error) {
	return q.listScheduledEmails(ctx, listScheduledEmails, arg.Status, arg.Limit, arg.Offset)
}

const markScheduledEmailSent = `
UPDATE scheduled_emails
SET status = 'sent', sent_at = $2, error_message = NULL
WHERE id = $1 AND status = 'pending'
RETURNING ` + scheduledEmailColumns

type MarkScheduledEmailSentParams struct {
	ID     uuid.UUID
	SentAt time.Time
}

func (q *Queries) MarkScheduledEmailSent(ctx context.Context, arg MarkScheduledEmailSentParams) (ScheduledEmail, error) {
	return scanScheduledEmail(q.db.QueryRowContext(ctx, markScheduledEmailSent, arg.ID, arg.SentAt))
}

const markScheduledEmailFailed = `
UPDATE scheduled_emails
SET status = 'failed', error_message = $2
WHERE id = $1 AND status = 'pending'
RETURNING ` + scheduledEmailColumns

type MarkScheduledEmailFailedParams struct {
	ID           uuid.UUID
	ErrorMessage sql.NullString
}

func (q *Queries) MarkScheduledEmailFailed(ctx context.Context, arg MarkScheduledEmailFailedParams) (ScheduledEmail, error) {
	return scanScheduledEmail(q.db.QueryRowContext(ctx, markScheduledEmailFailed, arg.ID, arg.ErrorMessage))
}
