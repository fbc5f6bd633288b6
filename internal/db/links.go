package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const linkColumns = `id, application_id, tracking_token, clicked, clicked_at, created_at`

func scanLink(row interface{ Scan(...any) error }) (ApplicationLink, error) {
	var i ApplicationLink
	err := row.Scan(
		&i.ID,
		&i.ApplicationID,
		&i.TrackingToken,
		&i.Clicked,
		&i.ClickedAt,
		&i.CreatedAt,
	)
	return i, err
}

const createApplicationLink = `
INSERT INTO application_links (application_id, tracking_token)
VALUES ($1, $2)
RETURNING ` + linkColumns

type CreateApplicationLinkParams struct {
	ApplicationID uuid.UUID
	TrackingToken uuid.UUID
}

func (q *Queries) CreateApplicationLink(ctx context.Context, arg CreateApplicationLinkParams) (ApplicationLink, error) {
	return scanLink(q.db.QueryRowContext(ctx, createApplicationLink, arg.ApplicationID, arg.TrackingToken))
}

const getApplicationLinkByToken = `SELECT ` + linkColumns + ` FROM application_links WHERE tracking_token = $1`

func (q *Queries) GetApplicationLinkByToken(ctx context.Context, trackingToken uuid.UUID) (ApplicationLink, error) {
	return scanLink(q.db.QueryRowContext(ctx, getApplicationLinkByToken, trackingToken))
}

const getApplicationLinkByApplicationID = `SELECT ` + linkColumns + ` FROM application_links WHERE application_id = $1`

func (q *Queries) GetApplicationLinkByApplicationID(ctx context.Context, applicationID uuid.UUID) (ApplicationLink, error) {
	return scanLink(q.db.QueryRowContext(ctx, getApplicationLinkByApplicationID, applicationID))
}

// The clicked = false guard makes a repeat click return sql.ErrNoRows
// instead of moving clicked_at.
const markApplicationLinkClicked = `
UPDATE application_links
SET clicked = true, clicked_at = $2
WHERE id = $1 AND clicked = false
RETURNING ` + linkColumns

type MarkApplicationLinkClickedParams struct {
	ID        uuid.UUID
	ClickedAt time.Time
}

func (q *Queries) MarkApplicationLinkClicked(ctx context.Context, arg MarkApplicationLinkClickedParams) (ApplicationLink, error) {
	return scanLink(q.db.QueryRowContext(ctx, markApplicationLinkClicked, arg.ID, arg.ClickedAt))
}
