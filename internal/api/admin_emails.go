package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
	"github.com/nyashahama/mba-scholarship-backend/internal/email"
)

const (
	triggerImmediate = "immediate"
	triggerDelayed   = "delayed"
)

// maxImmediateRecipients caps an immediate send, which runs inside the
// request. Larger lists go through the delayed trigger.
const maxImmediateRecipients = 50

// ─── POST /api/admin/emails ──────────────────────────────────────────────────

type sendEmailsRequest struct {
	Subject string   `json:"subject" validate:"required,max=200"`
	Content string   `json:"content" validate:"required,max=100000"`
	Emails  []string `json:"emails" validate:"required,min=1,max=500,dive,required,max=254,mailbox"`
	Trigger string   `json:"trigger" validate:"required,oneof=immediate delayed"`
	// Delay is in hours and only read for delayed sends.
	Delay *float64 `json:"delay" validate:"required_if=Trigger delayed,omitempty,gt=0,lte=720"`
}

type sendEmailsResponse struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

type scheduleEmailsResponse struct {
	Scheduled    int       `json:"scheduled"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// handleSendEmails is the dashboard composer. Immediate sends go out one
// recipient at a time inside the request; delayed sends become
// scheduled_emails rows for the worker.
func (s *Server) handleSendEmails(w http.ResponseWriter, r *http.Request) {
	var req sendEmailsRequest
	if !decode(w, r, &req) {
		return
	}
	req.Subject = strings.TrimSpace(req.Subject)
	req.Emails = dedupeEmails(req.Emails)
	if !s.valid(w, &req) {
		return
	}

	if req.Trigger == triggerDelayed {
		s.scheduleEmails(w, r, req)
		return
	}
	if len(req.Emails) > maxImmediateRecipients {
		respondErr(w, http.StatusBadRequest,
			fmt.Sprintf("immediate sends are limited to %d recipients; use trigger delayed", maxImmediateRecipients))
		return
	}

	resp := sendEmailsResponse{Errors: []string{}}
	for _, to := range req.Emails {
		_, err := s.mailer.Deliver(r.Context(), email.Custom(to, req.Subject, req.Content), db.EmailKindCustom, 0)
		if err != nil {
			resp.Failed++
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", to, err))
			continue
		}
		resp.Sent++
	}

	s.logger.Info("admin: custom email sent",
		"admin", adminSubject(r),
		"sent", resp.Sent,
		"failed", resp.Failed,
		logField(r),
	)

	if resp.Sent == 0 {
		respondErr(w, http.StatusInternalServerError, resp.Errors[0])
		return
	}
	respond(w, http.StatusOK, resp)
}

func (s *Server) scheduleEmails(w http.ResponseWriter, r *http.Request, req sendEmailsRequest) {
	scheduledFor := s.now().Add(time.Duration(*req.Delay * float64(time.Hour)))

	rows, err := s.q.CreateScheduledEmails(r.Context(), db.CreateScheduledEmailsParams{
		Emails:       req.Emails,
		Subject:      req.Subject,
		Content:      req.Content,
		ScheduledFor: scheduledFor,
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("create scheduled emails: %w", err))
		return
	}

	s.logger.Info("admin: custom email scheduled",
		"admin", adminSubject(r),
		"recipients", len(rows),
		"scheduled_for", scheduledFor,
		logField(r),
	)
	respond(w, http.StatusCreated, scheduleEmailsResponse{Scheduled: len(rows), ScheduledFor: scheduledFor})
}

// dedupeEmails normalises addresses and drops repeats, keeping first-seen
// order.
func dedupeEmails(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, addr := range in {
		addr = normaliseEmail(addr)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
