package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nyashahama/mba-scholarship-backend/internal/quiz"
	"github.com/nyashahama/mba-scholarship-backend/internal/store"
)

// ─── POST /api/applications ──────────────────────────────────────────────────

type submitApplicationRequest struct {
	Name        string       `json:"name" validate:"required,min=2,max=120"`
	Email       string       `json:"email" validate:"required,max=254,mailbox"`
	Phone       string       `json:"phone" validate:"required,min=7,max=32"`
	QuizAnswers quiz.Answers `json:"quiz_answers"`
	UtmSource   string       `json:"utm_source" validate:"max=100"`
	UtmMedium   string       `json:"utm_medium" validate:"max=100"`
	UtmCampaign string       `json:"utm_campaign" validate:"max=100"`
}

type quizSummary struct {
	Score      int       `json:"score"`
	MaxScore   int       `json:"max_score"`
	Percentage int       `json:"percentage"`
	Band       quiz.Band `json:"band"`
}

type submitApplicationResponse struct {
	ApplicationID string       `json:"application_id"`
	Quiz          *quizSummary `json:"quiz,omitempty"`
}

// handleSubmitApplication captures a lead from the landing page form.
//
// When quiz answers are present they are re-scored here (the browser's score
// is never trusted) and must cover every question. A completed quiz enrols
// the lead: the quiz-results email goes out immediately and the drip
// sequence is activated. If that send fails the lead is still saved and the
// worker retries the activation, so the response is 201 either way.
func (s *Server) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req submitApplicationRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normaliseEmail(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if !s.valid(w, &req) {
		return
	}

	params := store.SubmitApplicationParams{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		UtmSource:   req.UtmSource,
		UtmMedium:   req.UtmMedium,
		UtmCampaign: req.UtmCampaign,
		SubmittedAt: s.now(),
	}

	var summary *quizSummary
	if len(req.QuizAnswers) > 0 {
		result, err := s.quiz.Score(req.QuizAnswers)
		if errors.Is(err, quiz.ErrUnknownQuestion) || errors.Is(err, quiz.ErrUnknownOption) {
			respondErr(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			s.respondInternalErr(w, r, fmt.Errorf("score quiz: %w", err))
			return
		}
		if !result.Complete {
			p := s.quiz.Progress(req.QuizAnswers)
			respondErr(w, http.StatusBadRequest,
				fmt.Sprintf("quiz incomplete: %d of %d questions answered", p.Answered, p.Total))
			return
		}

		raw, err := json.Marshal(req.QuizAnswers)
		if err != nil {
			s.respondInternalErr(w, r, fmt.Errorf("marshal quiz answers: %w", err))
			return
		}
		params.QuizAnswers = raw
		params.QuizComplete = true
		params.QuizScore = result.Score
		params.QuizMaxScore = result.MaxScore

		summary = &quizSummary{
			Score:      result.Score,
			MaxScore:   result.MaxScore,
			Percentage: result.Percentage,
			Band:       result.Band,
		}
	}

	res, err := s.store.SubmitApplication(r.Context(), params)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("submit application: %w", err))
		return
	}

	if res.Link != nil && res.Sequence != nil {
		if err := s.mailer.Activate(r.Context(), res.Application, *res.Link, *res.Sequence); err != nil {
			s.logger.Warn("applications: activation deferred to worker",
				"application_id", res.Application.ID,
				"error", err,
				logField(r),
			)
		}
	}

	respond(w, http.StatusCreated, submitApplicationResponse{
		ApplicationID: res.Application.ID.String(),
		Quiz:          summary,
	})
}
