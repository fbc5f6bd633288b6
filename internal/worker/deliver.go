package worker

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
	"github.com/nyashahama/mba-scholarship-backend/internal/email"
)

// Deliver sends msg under the configured send timeout and records the attempt
// in email_log. stage is 0 for non-sequence mail. A failure to write the log
// row is logged and never turns a successful send into an error.
func (a *Advancer) Deliver(ctx context.Context, msg email.Message, kind db.EmailKind, stage int) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, a.cfg.SendTimeout)
	id, sendErr := a.mailer.Send(sendCtx, msg)
	cancel()

	status := db.EmailStatusSent
	var errMsg sql.NullString
	if sendErr != nil {
		status = db.EmailStatusFailed
		errMsg = sql.NullString{String: sendErr.Error(), Valid: true}
	}
	emailsTotal.WithLabelValues(string(kind), string(status)).Inc()

	logCtx, cancelLog := afterSend(ctx)
	defer cancelLog()
	_, err := a.q.InsertEmailLog(logCtx, db.InsertEmailLogParams{
		Email:             msg.To,
		Subject:           msg.Subject,
		Kind:              kind,
		SequenceStage:     sql.NullInt16{Int16: int16(stage), Valid: stage > 0},
		ProviderMessageID: sql.NullString{String: id, Valid: id != ""},
		Status:            status,
		ErrorMessage:      errMsg,
	})
	if err != nil {
		a.logger.Error("worker: write email log failed",
			"to", msg.To,
			"kind", kind,
			"error", err,
		)
	}

	if sendErr != nil {
		return "", sendErr
	}
	a.logger.Debug("worker: email sent", slog.String("to", msg.To), slog.String("kind", string(kind)), slog.String("id", id))
	return id, nil
}

// persistTimeout bounds each database write that records a finished send.
const persistTimeout = 10 * time.Second

// afterSend returns the context for writes that record a send. It is not
// cancelled with ctx, so a message the provider accepted is still recorded
// after the cycle or request deadline passes.
func afterSend(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
