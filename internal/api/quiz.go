package api

import (
	"net/http"

	"github.com/nyashahama/mba-scholarship-backend/internal/quiz"
)

// ─── GET /api/quiz ───────────────────────────────────────────────────────────

type getQuizResponse struct {
	Sections []quiz.Section `json:"sections"`
	Total    int            `json:"total_questions"`
}

// handleGetQuiz serves the question bank without option points.
func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, getQuizResponse{
		Sections: s.quiz.Public(),
		Total:    s.quiz.QuestionCount(),
	})
}

// ─── POST /api/quiz/progress ─────────────────────────────────────────────────

type quizProgressRequest struct {
	Answers quiz.Answers `json:"answers"`
}

// handleQuizProgress tells the widget which section to show and whether the
// lead form is unlocked. Nothing is stored.
func (s *Server) handleQuizProgress(w http.ResponseWriter, r *http.Request) {
	var req quizProgressRequest
	if !decode(w, r, &req) {
		return
	}
	respond(w, http.StatusOK, s.quiz.Progress(req.Answers))
}
