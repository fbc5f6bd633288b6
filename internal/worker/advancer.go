package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
	"github.com/nyashahama/mba-scholarship-backend/internal/email"
	"github.com/nyashahama/mba-scholarship-backend/internal/quiz"
	"github.com/nyashahama/mba-scholarship-backend/internal/sequence"
)

// AdvancerConfig holds tuning parameters for the Advancer. Zero values are
// replaced by DefaultAdvancerConfig.
type AdvancerConfig struct {
	// SendTimeout bounds each individual provider call. Default: 15s.
	SendTimeout time.Duration

	// ScheduledBatchSize caps how many scheduled_emails rows one cycle
	// dispatches. Default: 100.
	ScheduledBatchSize int

	// ActivationBatchSize caps how many stage-0 sequences one cycle retries.
	// Default: 50.
	ActivationBatchSize int
}

// DefaultAdvancerConfig returns safe production defaults.
func DefaultAdvancerConfig() AdvancerConfig {
	return AdvancerConfig{
		SendTimeout:         15 * time.Second,
		ScheduledBatchSize:  100,
		ActivationBatchSize: 50,
	}
}

// CycleResult summarises one RunOnce call.
type CycleResult struct {
	Activated       int `json:"activated"`
	Examined        int `json:"examined"` // open sequences at stage 1..3
	Due             int `json:"due"`      // of those, how many the planner picked
	Sent            int `json:"sent"`
	Skipped         int `json:"skipped"` // no tracking link or nothing to send
	Failed          int `json:"failed"`
	ScheduledSent   int `json:"scheduled_sent"`
	ScheduledFailed int `json:"scheduled_failed"`
}

// Advancer performs one pass of every periodic email job: retrying stalled
// activations, advancing drip sequences and dispatching scheduled emails.
// It holds no state between calls; everything lives in the database.
type Advancer struct {
	q        db.Querier
	mailer   email.Sender
	resolver sequence.Resolver
	cfg      AdvancerConfig
	logger   *slog.Logger

	now func() time.Time
}

// NewAdvancer constructs an Advancer with all required dependencies.
func NewAdvancer(
	q db.Querier,
	mailer email.Sender,
	resolver sequence.Resolver,
	cfg AdvancerConfig,
	logger *slog.Logger,
) *Advancer {
	def := DefaultAdvancerConfig()
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.ScheduledBatchSize <= 0 {
		cfg.ScheduledBatchSize = def.ScheduledBatchSize
	}
	if cfg.ActivationBatchSize <= 0 {
		cfg.ActivationBatchSize = def.ActivationBatchSize
	}

	return &Advancer{
		q:        q,
		mailer:   mailer,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce runs every pass once. Per-row failures are logged and counted but
// never abort the pass; the returned error is set only when the drip
// sequence rows could not be read at all.
func (a *Advancer) RunOnce(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	a.activatePending(ctx, &res)

	if err := a.advanceSequences(ctx, &res); err != nil {
		return res, err
	}

	a.dispatchScheduled(ctx, &res)

	a.logger.Info("worker: cycle complete",
		"activated", res.Activated,
		"examined", res.Examined,
		"due", res.Due,
		"sent", res.Sent,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"scheduled_sent", res.ScheduledSent,
		"scheduled_failed", res.ScheduledFailed,
	)
	return res, nil
}

// ─── DRIP SEQUENCE ───────────────────────────────────────────────────────────

func (a *Advancer) advanceSequences(ctx context.Context, res *CycleResult) error {
	rows, err := a.q.ListDueEmailSequences(ctx)
	if err != nil {
		return fmt.Errorf("worker: list due sequences: %w", err)
	}
	res.Examined = len(rows)

	states := make([]sequence.State, 0, len(rows))
	for _, row := range rows {
		states = append(states, toState(row))
	}

	sends := sequence.Plan(states, a.now())
	res.Due = len(sends)

	for _, s := range sends {
		if ctx.Err() != nil {
			return nil
		}
		switch err := a.sendStage(ctx, s); {
		case err == nil:
			res.Sent++
		case errors.Is(err, errSkipped):
			res.Skipped++
		default:
			res.Failed++
		}
	}
	return nil
}

var errSkipped = errors.New("skipped")

// sendStage delivers one planned send and persists the new stage. The stage
// write is conditional on the row still being where the plan found it; losing
// that race means another cycle already moved it on.
func (a *Advancer) sendStage(ctx context.Context, s sequence.Send) error {
	log := a.logger.With(
		"sequence_id", s.State.ID,
		"application_id", s.State.ApplicationID,
		"stage", s.State.Stage,
		"new_stage", s.NewStage,
	)

	link, err := a.q.GetApplicationLinkByApplicationID(ctx, s.State.ApplicationID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("worker: no tracking link for sequence, skipping")
		return errSkipped
	}
	if err != nil {
		log.Error("worker: load tracking link failed", "error", err)
		return err
	}

	content := a.resolver.Resolve(s.NewStage, s.State.Name, link.TrackingToken.String())
	if content.Empty() {
		log.Warn("worker: no content for stage, skipping")
		return errSkipped
	}

	_, err = a.Deliver(ctx, email.Message{
		To:      s.State.Email,
		Subject: content.Subject,
		HTML:    content.HTML,
	}, db.EmailKindSequence, s.NewStage)
	if err != nil {
		log.Warn("worker: sequence email failed, will retry next cycle", "error", err)
		return err
	}
	sequenceSendsTotal.WithLabelValues(strconv.Itoa(s.NewStage)).Inc()

	saveCtx, cancel := afterSend(ctx)
	defer cancel()
	_, err = a.q.AdvanceEmailSequence(saveCtx, db.AdvanceEmailSequenceParams{
		ID:            s.State.ID,
		ExpectedStage: int16(s.State.Stage),
		NewStage:      int16(s.NewStage),
		SentAt:        s.SentAt,
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		log.Warn("worker: sequence changed while sending, stage not updated")
	case err != nil:
		// The email went out; the next cycle will send it again.
		log.Error("worker: persist sequence stage failed", "error", err)
	default:
		log.Info("worker: sequence email sent")
	}
	return nil
}

func toState(row db.EmailSequence) sequence.State {
	s := sequence.State{
		ID:              row.ID,
		ApplicationID:   row.ApplicationID,
		Email:           row.Email,
		Name:            row.Name,
		TestCompletedAt: row.TestCompletedAt,
		Stage:           int(row.SequenceStage),
		LinkClicked:     row.LinkClicked,
	}
	if row.LastEmailSentAt.Valid {
		t := row.LastEmailSentAt.Time
		s.LastEmailSentAt = &t
	}
	return s
}

// ─── ACTIVATION (stage 0 → 1) ────────────────────────────────────────────────

// Activate sends the quiz-results email for a freshly enrolled lead and moves
// its sequence from stage 0 to 1. last_email_sent_at is left NULL so the
// stage-1 drip email still fires on its since-test schedule.
//
// On a send failure the sequence stays at stage 0 and the activation pass
// retries it on the next cycle.
func (a *Advancer) Activate(ctx context.Context, app db.ScholarshipApplication, link db.ApplicationLink, seq db.EmailSequence) error {
	p := email.QuizResultsParams{
		To:          app.Email,
		Name:        app.Name,
		Score:       int(app.QuizScore.Int32),
		MaxScore:    int(app.QuizMaxScore.Int32),
		TrackingURL: a.resolver.TrackingURL(link.TrackingToken.String()),
	}
	p.Percentage = quiz.Percentage(p.Score, p.MaxScore)
	p.Band = string(quiz.BandFor(p.Percentage))

	if _, err := a.Deliver(ctx, email.QuizResults(p), db.EmailKindQuizResults, 0); err != nil {
		return fmt.Errorf("worker: send quiz results: %w", err)
	}

	saveCtx, cancel := afterSend(ctx)
	defer cancel()
	_, err := a.q.ActivateEmailSequence(saveCtx, seq.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// already active, or the lead clicked first
		return nil
	}
	if err != nil {
		return fmt.Errorf("worker: activate sequence: %w", err)
	}
	return nil
}

func (a *Advancer) activatePending(ctx context.Context, res *CycleResult) {
	pending, err := a.q.ListPendingActivations(ctx, int32(a.cfg.ActivationBatchSize))
	if err != nil {
		a.logger.Error("worker: list pending activations failed", "error", err)
		return
	}

	for _, seq := range pending {
		if ctx.Err() != nil {
			return
		}
		log := a.logger.With("sequence_id", seq.ID, "application_id", seq.ApplicationID)

		if err := a.activateOne(ctx, seq); err != nil {
			log.Warn("worker: activation failed, will retry later", "error", err)
			a.deferActivation(ctx, seq, log)
			continue
		}
		res.Activated++
	}
}

func (a *Advancer) activateOne(ctx context.Context, seq db.EmailSequence) error {
	app, err := a.q.GetApplicationByID(ctx, seq.ApplicationID)
	if err != nil {
		return fmt.Errorf("worker: load application: %w", err)
	}
	link, err := a.q.GetApplicationLinkByApplicationID(ctx, seq.ApplicationID)
	if err != nil {
		return fmt.Errorf("worker: load tracking link: %w", err)
	}
	return a.Activate(ctx, app, link, seq)
}

// deferActivation sends a failed row to the back of the pending queue so a
// run of permanently failing leads cannot fill every batch.
func (a *Advancer) deferActivation(ctx context.Context, seq db.EmailSequence, log *slog.Logger) {
	saveCtx, cancel := afterSend(ctx)
	defer cancel()
	if err := a.q.DeferEmailSequenceActivation(saveCtx, seq.ID); err != nil {
		log.Error("worker: defer activation failed", "error", err)
	}
}

// ─── SCHEDULED EMAILS ────────────────────────────────────────────────────────

func (a *Advancer) dispatchScheduled(ctx context.Context, res *CycleResult) {
	due, err := a.q.ListDueScheduledEmails(ctx, db.ListDueScheduledEmailsParams{
		Now:   a.now(),
		Limit: int32(a.cfg.ScheduledBatchSize),
	})
	if err != nil {
		a.logger.Error("worker: list scheduled emails failed", "error", err)
		return
	}

	for _, se := range due {
		if ctx.Err() != nil {
			return
		}
		log := a.logger.With("scheduled_email_id", se.ID, "to", se.Email)

		_, sendErr := a.Deliver(ctx, email.Custom(se.Email, se.Subject, se.Content), db.EmailKindScheduled, 0)
		a.markScheduled(ctx, se, sendErr, res, log)
	}
}

// markScheduled records the outcome of one scheduled send.
func (a *Advancer) markScheduled(ctx context.Context, se db.ScheduledEmail, sendErr error, res *CycleResult, log *slog.Logger) {
	saveCtx, cancel := afterSend(ctx)
	defer cancel()

	if sendErr != nil {
		res.ScheduledFailed++
		log.Warn("worker: scheduled email failed", "error", sendErr)
		_, err := a.q.MarkScheduledEmailFailed(saveCtx, db.MarkScheduledEmailFailedParams{
			ID:           se.ID,
			ErrorMessage: sql.NullString{String: sendErr.Error(), Valid: true},
		})
		if err != nil {
			log.Error("worker: mark scheduled email failed", "error", err)
		}
		return
	}

	res.ScheduledSent++
	if _, err := a.q.MarkScheduledEmailSent(saveCtx, db.MarkScheduledEmailSentParams{
		ID:     se.ID,
		SentAt: a.now(),
	}); err != nil {
		log.Error("worker: mark scheduled email sent", "error", err)
	}
}
