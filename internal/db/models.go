package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type ScheduledEmailStatus string

const (
	ScheduledEmailStatusPending ScheduledEmailStatus = "pending"
	ScheduledEmailStatusSent    ScheduledEmailStatus = "sent"
	ScheduledEmailStatusFailed  ScheduledEmailStatus = "failed"
)

type EmailKind string

const (
	EmailKindQuizResults EmailKind = "quiz_results"
	EmailKindSequence    EmailKind = "sequence"
	EmailKindCustom      EmailKind = "custom"
	EmailKindScheduled   EmailKind = "scheduled"
)

type EmailStatus string

const (
	EmailStatusSent   EmailStatus = "sent"
	EmailStatusFailed EmailStatus = "failed"
)

// ScholarshipApplication is one lead captured by the landing page form.
type ScholarshipApplication struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Phone           string
	QuizAnswers     pqtype.NullRawMessage
	QuizScore       sql.NullInt32
	QuizMaxScore    sql.NullInt32
	QuizCompletedAt sql.NullTime
	UtmSource       sql.NullString
	UtmMedium       sql.NullString
	UtmCampaign     sql.NullString
	CreatedAt       time.Time
}

// ApplicationLink binds a lead to the opaque token embedded in drip emails.
type ApplicationLink struct {
	ID            uuid.UUID
	ApplicationID uuid.UUID
	TrackingToken uuid.UUID
	Clicked       bool
	ClickedAt     sql.NullTime
	CreatedAt     time.Time
}

// EmailSequence is the per-lead drip state.
type EmailSequence struct {
	ID              uuid.UUID
	ApplicationID   uuid.UUID
	Email           string
	Name            string
	TestCompletedAt time.Time
	SequenceStage   int16
	LastEmailSentAt sql.NullTime
	LinkClicked     bool
	LinkClickedAt   sql.NullTime
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ScheduledEmail struct {
	ID           uuid.UUID
	Email        string
	Subject      string
	Content      string
	ScheduledFor time.Time
	Status       ScheduledEmailStatus
	SentAt       sql.NullTime
	ErrorMessage sql.NullString
	CreatedAt    time.Time
}

type EmailLog struct {
	ID                uuid.UUID
	Email             string
	Subject           string
	Kind              EmailKind
	SequenceStage     sql.NullInt16
	ProviderMessageID sql.NullString
	Status            EmailStatus
	ErrorMessage      sql.NullString
	CreatedAt         time.Time
}

type ContactMessage struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}
