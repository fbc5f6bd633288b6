package db

import (
	"context"

	"github.com/google/uuid"
)

// Querier lists every statement in the package.
type Querier interface {
	// applications
	CreateApplication(ctx context.Context, arg CreateApplicationParams) (ScholarshipApplication, error)
	GetApplicationByID(ctx context.Context, id uuid.UUID) (ScholarshipApplication, error)
	ListApplications(ctx context.Context, arg ListApplicationsParams) ([]ListApplicationsRow, error)
	GetFunnelStats(ctx context.Context) (GetFunnelStatsRow, error)

	// application_links
	CreateApplicationLink(ctx context.Context, arg CreateApplicationLinkParams) (ApplicationLink, error)
	GetApplicationLinkByToken(ctx context.Context, trackingToken uuid.UUID) (ApplicationLink, error)
	GetApplicationLinkByApplicationID(ctx context.Context, applicationID uuid.UUID) (ApplicationLink, error)
	MarkApplicationLinkClicked(ctx context.Context, arg MarkApplicationLinkClickedParams) (ApplicationLink, error)

	// email_sequences
	CreateEmailSequence(ctx context.Context, arg CreateEmailSequenceParams) (EmailSequence, error)
	GetEmailSequenceByApplicationID(ctx context.Context, applicationID uuid.UUID) (EmailSequence, error)
	ListDueEmailSequences(ctx context.Context) ([]EmailSequence, error)
	ListPendingActivations(ctx context.Context, limit int32) ([]EmailSequence, error)
	DeferEmailSequenceActivation(ctx context.Context, id uuid.UUID) error
	ActivateEmailSequence(ctx context.Context, id uuid.UUID) (EmailSequence, error)
	AdvanceEmailSequence(ctx context.Context, arg AdvanceEmailSequenceParams) (EmailSequence, error)
	MarkEmailSequenceClicked(ctx context.Context, arg MarkEmailSequenceClickedParams) (EmailSequence, error)
	CountSequencesByStage(ctx context.Context) ([]CountSequencesByStageRow, error)

	// scheduled_emails
	CreateScheduledEmails(ctx context.Context, arg CreateScheduledEmailsParams) ([]ScheduledEmail, error)
	ListDueScheduledEmails(ctx context.Context, arg ListDueScheduledEmailsParams) ([]ScheduledEmail, error)
	ListScheduledEmails(ctx context.Context, arg ListScheduledEmailsParams) ([]ScheduledEmail, error)
	MarkScheduledEmailSent(ctx context.Context, arg MarkScheduledEmailSentParams) (ScheduledEmail, error)
	MarkScheduledEmailFailed(ctx context.Context, arg MarkScheduledEmailFailedParams) (ScheduledEmail, error)

	// email_log
	InsertEmailLog(ctx context.Context, arg InsertEmailLogParams) (EmailLog, error)
	CountEmailLogByStatus(ctx context.Context) ([]CountEmailLogByStatusRow, error)

	// contact_messages
	CreateContactMessage(ctx context.Context, arg CreateContactMessageParams) (ContactMessage, error)
}

var _ Querier = (*Queries)(nil)
