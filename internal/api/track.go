package api

import (
	"errors"
	"net/http"

	"github.com/nyashahama/mba-scholarship-backend/internal/store"
)

// ─── GET /api/track?token= ───────────────────────────────────────────────────

// handleTrackClick records a click on a drip email link and redirects the
// recipient to the application form. Recording the click stops the lead's
// drip sequence. Repeat clicks redirect the same way and change nothing.
func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	token, err := queryUUID(r, "token")
	switch {
	case errors.Is(err, errMissingParam):
		respondErr(w, http.StatusBadRequest, "token is required")
		return
	case err != nil:
		respondErr(w, http.StatusBadRequest, "token is not a valid UUID")
		return
	}

	res, err := s.store.RecordClick(r.Context(), token, s.now())
	if errors.Is(err, store.ErrTrackingLinkNotFound) {
		respondErr(w, http.StatusNotFound, "tracking link not found")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}

	if res.FirstClick {
		s.logger.Info("track: link clicked",
			"application_id", res.Link.ApplicationID,
			logField(r),
		)
	}

	http.Redirect(w, r, s.cfg.ApplicationFormURL, http.StatusFound)
}
