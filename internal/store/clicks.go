package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
)

// ErrTrackingLinkNotFound is returned when a click carries a token that
// matches no application_links row.
var ErrTrackingLinkNotFound = errors.New("store: tracking link not found")

// ClickResult reports what RecordClick did.
type ClickResult struct {
	Link db.ApplicationLink
	// FirstClick is false for repeat clicks, which change nothing.
	FirstClick bool
}

// RecordClick marks the link behind token as clicked and stops the lead's
// drip sequence, in one transaction.
//
// Repeat clicks are idempotent: the first clicked_at is kept and no error is
// returned. The sequence update is also applied on a repeat click so a link
// clicked before its sequence existed still ends up stopping it.
//
// The transaction runs at read committed: every write is conditional on
// clicked = false, so a concurrent double click resolves to one winner and
// one no-op instead of a serialization failure.
func (s *Store) RecordClick(ctx context.Context, token uuid.UUID, now time.Time) (ClickResult, error) {
	var res ClickResult

	err := s.withTxIsolation(ctx, sql.LevelReadCommitted, func(ctx context.Context, q db.Querier) error {
		link, err := q.GetApplicationLinkByToken(ctx, token)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTrackingLinkNotFound
		}
		if err != nil {
			return fmt.Errorf("RecordClick: get link: %w", err)
		}

		if !link.Clicked {
			updated, err := q.MarkApplicationLinkClicked(ctx, db.MarkApplicationLinkClickedParams{
				ID:        link.ID,
				ClickedAt: now,
			})
			switch {
			case err == nil:
				link = updated
				res.FirstClick = true
			case errors.Is(err, sql.ErrNoRows):
				// lost a race with a concurrent click; theirs stands
				if link, err = q.GetApplicationLinkByToken(ctx, token); err != nil {
					return fmt.Errorf("RecordClick: reload link: %w", err)
				}
			default:
				return fmt.Errorf("RecordClick: mark link: %w", err)
			}
		}
		res.Link = link

		// ErrNoRows here means no sequence or one already stopped.
		_, err = q.MarkEmailSequenceClicked(ctx, db.MarkEmailSequenceClickedParams{
			ApplicationID: link.ApplicationID,
			ClickedAt:     now,
		})
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("RecordClick: mark sequence: %w", err)
		}

		return nil
	})

	if errors.Is(err, ErrTrackingLinkNotFound) {
		return ClickResult{}, ErrTrackingLinkNotFound
	}
	if err != nil {
		return ClickResult{}, err
	}

	return res, nil
}
