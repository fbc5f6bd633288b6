package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nyashahama/mba-scholarship-backend/internal/db"
)

const (
	exportSheet   = "Applicants"
	exportMaxRows = 50_000
)

var exportHeader = []any{
	"id", "name", "email", "phone", "quiz_score", "quiz_max_score",
	"quiz_completed_at", "utm_source", "link_clicked", "link_clicked_at",
	"sequence_stage", "last_email_sent_at", "created_at",
}

// ─── GET /api/admin/applications/export ──────────────────────────────────────

// handleExportApplications streams every applicant (newest first, capped at
// exportMaxRows) as a single-sheet XLSX workbook.
func (s *Server) handleExportApplications(w http.ResponseWriter, r *http.Request) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), exportSheet); err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("rename sheet: %w", err))
		return
	}
	if err := xl.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("write header: %w", err))
		return
	}

	written := 0
	for offset := 0; offset < exportMaxRows; offset += maxPageSize {
		rows, err := s.q.ListApplications(r.Context(), db.ListApplicationsParams{
			Limit:  maxPageSize,
			Offset: int32(offset),
		})
		if err != nil {
			s.respondInternalErr(w, r, fmt.Errorf("list applications: %w", err))
			return
		}

		for _, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, written+2)
			record := exportRecord(row)
			if err := xl.SetSheetRow(exportSheet, cell, &record); err != nil {
				s.respondInternalErr(w, r, fmt.Errorf("write row: %w", err))
				return
			}
			written++
		}
		if len(rows) < maxPageSize {
			break
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("write workbook: %w", err))
		return
	}

	filename := "applicants-" + s.now().Format("2006-01-02") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)

	s.logger.Info("admin: applications exported", "admin", adminSubject(r), "rows", written, logField(r))
}

func exportRecord(row db.ListApplicationsRow) []any {
	item := toApplicationItem(row)
	return []any{
		item.ID,
		item.Name,
		item.Email,
		item.Phone,
		optional(item.QuizScore),
		optional(item.QuizMaxScore),
		formatTime(item.QuizCompletedAt),
		item.UtmSource,
		item.LinkClicked,
		formatTime(item.LinkClickedAt),
		optional(item.SequenceStage),
		formatTime(item.LastEmailSentAt),
		item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// optional leaves the cell blank for NULL numeric columns.
func optional[T int16 | int32](v *T) any {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
