package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
	"github.com/nyashahama/mba-scholarship-backend/internal/worker"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// page reads limit/offset from the query string, clamping limit to
// [1, maxPageSize]. Malformed values fall back to the defaults.
func page(r *http.Request) (limit, offset int32) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = int32(min(v, maxPageSize))
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = int32(v)
	}
	return limit, offset
}

// ─── GET /api/admin/applications ─────────────────────────────────────────────

type applicationItem struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	QuizScore       *int32     `json:"quiz_score"`
	QuizMaxScore    *int32     `json:"quiz_max_score"`
	QuizCompletedAt *time.Time `json:"quiz_completed_at"`
	UtmSource       string     `json:"utm_source,omitempty"`
	LinkClicked     bool       `json:"link_clicked"`
	LinkClickedAt   *time.Time `json:"link_clicked_at"`
	SequenceStage   *int16     `json:"sequence_stage"`
	LastEmailSentAt *time.Time `json:"last_email_sent_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

type listApplicationsResponse struct {
	Items  []applicationItem `json:"items"`
	Limit  int32             `json:"limit"`
	Offset int32             `json:"offset"`
}

func toApplicationItem(row db.ListApplicationsRow) applicationItem {
	item := applicationItem{
		ID:          row.ID.String(),
		Name:        row.Name,
		Email:       row.Email,
		Phone:       row.Phone,
		UtmSource:   row.UtmSource.String,
		LinkClicked: row.LinkClicked.Valid && row.LinkClicked.Bool,
		CreatedAt:   row.CreatedAt,
	}
	if row.QuizScore.Valid {
		item.QuizScore = &row.QuizScore.Int32
	}
	if row.QuizMaxScore.Valid {
		item.QuizMaxScore = &row.QuizMaxScore.Int32
	}
	item.QuizCompletedAt = nullTime(row.QuizCompletedAt)
	item.LinkClickedAt = nullTime(row.LinkClickedAt)
	item.LastEmailSentAt = nullTime(row.LastEmailSentAt)
	if row.SequenceStage.Valid {
		item.SequenceStage = &row.SequenceStage.Int16
	}
	return item
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)

	rows, err := s.q.ListApplications(r.Context(), db.ListApplicationsParams{Limit: limit, Offset: offset})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list applications: %w", err))
		return
	}

	items := make([]applicationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toApplicationItem(row))
	}
	respond(w, http.StatusOK, listApplicationsResponse{Items: items, Limit: limit, Offset: offset})
}

// ─── GET /api/admin/stats ────────────────────────────────────────────────────

type statsResponse struct {
	Applications       int64            `json:"applications"`
	QuizCompleted      int64            `json:"quiz_completed"`
	LinksCreated       int64            `json:"links_created"`
	LinksClicked       int64            `json:"links_clicked"`
	QuizCompletionRate float64          `json:"quiz_completion_rate"`
	ClickThroughRate   float64          `json:"click_through_rate"`
	SequencesByStage   map[string]int64 `json:"sequences_by_stage"` // open sequences only
	SequencesClicked   int64            `json:"sequences_clicked"`
	EmailsSent         int64            `json:"emails_sent"`
	EmailsFailed       int64            `json:"emails_failed"`
	EmailsByKind       map[string]int64 `json:"emails_by_kind"` // successful sends
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// handleStats returns funnel totals and simple ratios for the dashboard.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	funnel, err := s.q.GetFunnelStats(ctx)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("funnel stats: %w", err))
		return
	}
	stages, err := s.q.CountSequencesByStage(ctx)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("sequence stats: %w", err))
		return
	}
	emails, err := s.q.CountEmailLogByStatus(ctx)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("email stats: %w", err))
		return
	}

	resp := statsResponse{
		Applications:       funnel.Applications,
		QuizCompleted:      funnel.QuizCompleted,
		LinksCreated:       funnel.LinksCreated,
		LinksClicked:       funnel.LinksClicked,
		QuizCompletionRate: ratio(funnel.QuizCompleted, funnel.Applications),
		ClickThroughRate:   ratio(funnel.LinksClicked, funnel.LinksCreated),
		SequencesByStage:   map[string]int64{"0": 0, "1": 0, "2": 0, "3": 0},
		EmailsByKind:       map[string]int64{},
	}
	for _, row := range stages {
		if row.LinkClicked {
			resp.SequencesClicked += row.Count
			continue
		}
		resp.SequencesByStage[strconv.Itoa(int(row.SequenceStage))] += row.Count
	}
	for _, row := range emails {
		switch row.Status {
		case db.EmailStatusSent:
			resp.EmailsSent += row.Count
			resp.EmailsByKind[string(row.Kind)] += row.Count
		case db.EmailStatusFailed:
			resp.EmailsFailed += row.Count
		}
	}

	respond(w, http.StatusOK, resp)
}

// ─── GET /api/admin/scheduled-emails ─────────────────────────────────────────

type scheduledEmailItem struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Subject      string     `json:"subject"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sent_at"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (s *Server) handleListScheduledEmails(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)

	status := sql.NullString{}
	if v := r.URL.Query().Get("status"); v != "" {
		switch db.ScheduledEmailStatus(v) {
		case db.ScheduledEmailStatusPending, db.ScheduledEmailStatusSent, db.ScheduledEmailStatusFailed:
			status = sql.NullString{String: v, Valid: true}
		default:
			respondErr(w, http.StatusBadRequest, "status must be one of: pending sent failed")
			return
		}
	}

	rows, err := s.q.ListScheduledEmails(r.Context(), db.ListScheduledEmailsParams{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list scheduled emails: %w", err))
		return
	}

	items := make([]scheduledEmailItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, scheduledEmailItem{
			ID:           row.ID.String(),
			Email:        row.Email,
			Subject:      row.Subject,
			ScheduledFor: row.ScheduledFor,
			Status:       string(row.Status),
			SentAt:       nullTime(row.SentAt),
			ErrorMessage: row.ErrorMessage.String,
			CreatedAt:    row.CreatedAt,
		})
	}
	respond(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

// ─── POST /api/admin/sequences/advance ───────────────────────────────────────

// handleAdvanceSequences runs one worker cycle now. External schedulers call
// this instead of relying on the in-process ticker.
func (s *Server) handleAdvanceSequences(w http.ResponseWriter, r *http.Request) {
	res, err := s.cycler.RunCycle(r.Context())
	if errors.Is(err, worker.ErrCycleBusy) {
		respondErr(w, http.StatusConflict, "a cycle is already running")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("run cycle: %w", err))
		return
	}

	s.logger.Info("admin: sequence cycle triggered", "admin", adminSubject(r), "sent", res.Sent, logField(r))
	respond(w, http.StatusOK, res)
}
