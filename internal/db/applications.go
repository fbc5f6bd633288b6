package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const applicationColumns = `id, name, email, phone, quiz_answers, quiz_score, quiz_max_score,
	quiz_completed_at, utm_source, utm_medium, utm_campaign, created_at`

func scanApplication(row interface{ Scan(...any) error }) (ScholarshipApplication, error) {
	var i ScholarshipApplication
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Email,
		&i.Phone,
		&i.QuizAnswers,
		&i.QuizScore,
		&i.QuizMaxScore,
		&i.QuizCompletedAt,
		&i.UtmSource,
		&i.UtmMedium,
		&i.UtmCampaign,
		&i.CreatedAt,
	)
	return i, err
}

const createApplication = `
INSERT INTO scholarship_applications (
	name, email, phone, quiz_answers, quiz_score, quiz_max_score,
	quiz_completed_at, utm_source, utm_medium, utm_campaign
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + applicationColumns

type CreateApplicationParams struct {
	Name            string
	Email           string
	Phone           string
	QuizAnswers     pqtype.NullRawMessage
	QuizScore       sql.NullInt32
	QuizMaxScore    sql.NullInt32
	QuizCompletedAt sql.NullTime
	UtmSource       sql.NullString
	UtmMedium       sql.NullString
	UtmCampaign     sql.NullString
}

func (q *Queries) CreateApplication(ctx context.Context, arg CreateApplicationParams) (ScholarshipApplication, error) {
	row := q.db.QueryRowContext(ctx, createApplication,
		arg.Name,
		arg.Email,
		arg.Phone,
		arg.QuizAnswers,
		arg.QuizScore,
		arg.QuizMaxScore,
		arg.QuizCompletedAt,
		arg.UtmSource,
		arg.UtmMedium,
		arg.UtmCampaign,
	)
	return scanApplication(row)
}

const getApplicationByID = `SELECT ` + applicationColumns + ` FROM scholarship_applications WHERE id = $1`

func (q *Queries) GetApplicationByID(ctx context.Context, id uuid.UUID) (ScholarshipApplication, error) {
	return scanApplication(q.db.QueryRowContext(ctx, getApplicationByID, id))
}

const listApplications = `
SELECT
	a.id, a.name, a.email, a.phone, a.quiz_score, a.quiz_max_score,
	a.quiz_completed_at, a.utm_source, a.created_at,
	l.clicked, l.clicked_at,
	s.sequence_stage, s.last_email_sent_at
FROM scholarship_applications a
LEFT JOIN application_links l ON l.application_id = a.id
LEFT JOIN email_sequences s ON s.application_id = a.id
ORDER BY a.created_at DESC
LIMIT $1 OFFSET $2`

type ListApplicationsParams struct {
	Limit  int32
	Offset int32
}

// ListApplicationsRow is an applicant joined with its tracking and drip
// state. The joined columns are NULL for leads who skipped the quiz.
type ListApplicationsRow struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Phone           string
	QuizScore       sql.NullInt32
	QuizMaxScore    sql.NullInt32
	QuizCompletedAt sql.NullTime
	UtmSource       sql.NullString
	CreatedAt       time.Time
	LinkClicked     sql.NullBool
	LinkClickedAt   sql.NullTime
	SequenceStage   sql.NullInt16
	LastEmailSentAt sql.NullTime
}

func (q *Queries) ListApplications(ctx context.Context, arg ListApplicationsParams) ([]ListApplicationsRow, error) {
	rows, err := q.db.QueryContext(ctx, listApplications, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListApplicationsRow
	for rows.Next() {
		var i ListApplicationsRow
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Email,
			&i.Phone,
			&i.QuizScore,
			&i.QuizMaxScore,
			&i.QuizCompletedAt,
			&i.UtmSource,
			&i.CreatedAt,
			&i.LinkClicked,
			&i.LinkClickedAt,
			&i.SequenceStage,
			&i.LastEmailSentAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getFunnelStats = `
SELECT
	(SELECT count(*) FROM scholarship_applications),
	(SELECT count(*) FROM scholarship_applications WHERE quiz_completed_at IS NOT NULL),
	(SELECT count(*) FROM application_links),
	(SELECT count(*) FROM application_links WHERE clicked)`

type GetFunnelStatsRow struct {
	Applications  int64
	QuizCompleted int64
	LinksCreated  int64
	LinksClicked  int64
}

func (q *Queries) GetFunnelStats(ctx context.Context) (GetFunnelStatsRow, error) {
	var i GetFunnelStatsRow
	err := q.db.QueryRowContext(ctx, getFunnelStats).Scan(
		&i.Applications,
		&i.QuizCompleted,
		&i.LinksCreated,
		&i.LinksClicked,
	)
	return i, err
}
