package db

import "context"

const createContactMessage = `
INSERT INTO contact_messages (name, email, message)
VALUES ($1, $2, $3)
RETURNING id, name, email, message, created_at`

type CreateContactMessageParams struct {
	Name    string
	Email   string
	Message string
}

func (q *Queries) CreateContactMessage(ctx context.Context, arg CreateContactMessageParams) (ContactMessage, error) {
	row := q.db.QueryRowContext(ctx, createContactMessage, arg.Name, arg.Email, arg.Message)
	var i ContactMessage
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Email,
		&i.Message,
		&i.CreatedAt,
	)
	return i, err
}
