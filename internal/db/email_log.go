package db

import (
	"context"
	"database/sql"
)

const insertEmailLog = `
INSERT INTO email_log (email, subject, kind, sequence_stage, provider_message_id, status, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, email, subject, kind, sequence_stage, provider_message_id, status, error_message, created_at`

type InsertEmailLogParams struct {
	Email             string
	Subject           string
	Kind              EmailKind
	SequenceStage     sql.NullInt16
	ProviderMessageID sql.NullString
	Status            EmailStatus
	ErrorMessage      sql.NullString
}

func (q *Queries) InsertEmailLog(ctx context.Context, arg InsertEmailLogParams) (EmailLog, error) {
	row := q.db.QueryRowContext(ctx, insertEmailLog,
		arg.Email,
		arg.Subject,
		arg.Kind,
		arg.SequenceStage,
		arg.ProviderMessageID,
		arg.Status,
		arg.ErrorMessage,
	)
	var i EmailLog
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Subject,
		&i.Kind,
		&i.SequenceStage,
		&i.ProviderMessageID,
		&i.Status,
		&i.ErrorMessage,
		&i.CreatedAt,
	)
	return i, err
}

const countEmailLogByStatus = `
SELECT kind, status, count(*)
FROM email_log
GROUP BY kind, status
ORDER BY kind, status`

type CountEmailLogByStatusRow struct {
	Kind   EmailKind
	Status EmailStatus
	Count  int64
}

func (q *Queries) CountEmailLogByStatus(ctx context.Context) ([]CountEmailLogByStatusRow, error) {
	rows, err := q.db.QueryContext(ctx, countEmailLogByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountEmailLogByStatusRow
	for rows.Next() {
		var i CountEmailLogByStatusRow
		if err := rows.Scan(&i.Kind, &i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
