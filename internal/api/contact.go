package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
)

// ─── POST /api/contact ───────────────────────────────────────────────────────

type contactRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=120"`
	Email   string `json:"email" validate:"required,max=254,mailbox"`
	Message string `json:"message" validate:"required,min=2,max=5000"`
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normaliseEmail(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	if !s.valid(w, &req) {
		return
	}

	msg, err := s.q.CreateContactMessage(r.Context(), db.CreateContactMessageParams{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("create contact message: %w", err))
		return
	}

	respond(w, http.StatusCreated, map[string]string{"id": msg.ID.String()})
}

// ─── GET /api/promotion ──────────────────────────────────────────────────────

type promotionResponse struct {
	Deadline         *time.Time `json:"deadline"`
	SecondsRemaining int64      `json:"seconds_remaining"`
	Expired          bool       `json:"expired"`
}

// handlePromotion feeds the countdown timer. With no deadline configured the
// promotion reports as expired.
func (s *Server) handlePromotion(w http.ResponseWriter, r *http.Request) {
	deadline := s.cfg.PromotionDeadline
	if deadline.IsZero() {
		respond(w, http.StatusOK, promotionResponse{Expired: true})
		return
	}

	remaining := int64(deadline.Sub(s.now()).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	respond(w, http.StatusOK, promotionResponse{
		Deadline:         &deadline,
		SecondsRemaining: remaining,
		Expired:          remaining == 0,
	})
}
