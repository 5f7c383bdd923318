package domain

import (
	"context"
	"time"

	"github.com/gearline/crm/pkg/models"
)

// AssignmentStore covers the persistence needs of the assignment engine.
type AssignmentStore interface {
	// ListUnassigned returns unassigned leads oldest-first.
	ListUnassigned(ctx context.Context, limit int) ([]*models.UnassignedLead, error)
	// ListAgents returns active agents eligible to receive leads.
	ListAgents(ctx context.Context) ([]*models.User, error)
	// OpenLeadCounts returns the number of open (non-terminal) leads per agent id.
	OpenLeadCounts(ctx context.Context) (map[uint]int, error)
	// Promote converts an unassigned lead into an assigned Lead, writes the
	// TeamAssignment and score rows, and removes the unassigned row, all in
	// one transaction.
	Promote(ctx context.Context, ul *models.UnassignedLead, agentID uint, score *models.LeadScore) (*models.Lead, error)
	// Reassign moves a lead to another agent, deactivating the previous
	// assignment and appending a new one in the same transaction.
	Reassign(ctx context.Context, leadID, toAgentID uint, reason string) (*models.Lead, error)
	GetLead(ctx context.Context, id uint) (*models.Lead, error)
}

// ScoreStore persists computed lead scores.
type ScoreStore interface {
	SaveScore(ctx context.Context, score *models.LeadScore) error
	LatestScore(ctx context.Context, leadID uint) (*models.LeadScore, error)
	// WorkedLeadCount counts worked-lead events for a lead, a scoring signal
	// for first-time detection.
	WorkedLeadCount(ctx context.Context, leadID uint) (int64, error)
	// UnreachedCallCount counts calls since the cutoff that did not connect
	// (no answer, busy, switched off), a scoring signal for leads that keep
	// slipping through.
	UnreachedCallCount(ctx context.Context, leadID uint, since time.Time) (int64, error)
}

// SnapshotStore persists daily followup snapshots.
type SnapshotStore interface {
	// AgentsWithOpenLeads returns agent ids with at least one open lead
	// together with their due counts for the given date.
	AgentOpenLeadStats(ctx context.Context, date time.Time) ([]*models.AgentDayStats, error)
	// CreateDailyCountIfAbsent inserts the snapshot row unless one already
	// exists for (user, date). Returns true if a row was created.
	CreateDailyCountIfAbsent(ctx context.Context, count *models.DailyFollowupCount) (bool, error)
}

// TemplateStore persists the provider template catalog.
type TemplateStore interface {
	ListTemplates(ctx context.Context) ([]*models.TeleobiTemplateCache, error)
	GetTemplate(ctx context.Context, templateID string) (*models.TeleobiTemplateCache, error)
	// ReplaceTemplates upserts the fetched catalog and stamps SyncedAt.
	ReplaceTemplates(ctx context.Context, templates []*models.TeleobiTemplateCache) error
	// LastSyncedAt returns the most recent SyncedAt across the catalog,
	// zero time when the catalog is empty.
	LastSyncedAt(ctx context.Context) (time.Time, error)
}

// BulkJobStore covers the bulk dispatch engine's persistence.
type BulkJobStore interface {
	CreateJob(ctx context.Context, job *models.WhatsAppBulkJob) error
	GetJob(ctx context.Context, id uint) (*models.WhatsAppBulkJob, error)
	ListJobs(ctx context.Context, limit int) ([]*models.WhatsAppBulkJob, error)
	// MarkRunning transitions queued→running (or keeps running on resume)
	// and stamps StartedAt when unset.
	MarkRunning(ctx context.Context, id uint) error
	// RecordOutcome writes the terminal WhatsAppSend row and advances the
	// job's processed/sent/failed counters in one transaction. The send's
	// RecipientIndex must equal the job's current ProcessedCount.
	RecordOutcome(ctx context.Context, jobID uint, send *models.WhatsAppSend) error
	// Finish moves the job to a terminal status and stamps CompletedAt.
	Finish(ctx context.Context, id uint, status string, errMsg string) error
	// RequestCancel flags a queued or running job for cancellation.
	// Returns false when the job is already terminal.
	RequestCancel(ctx context.Context, id uint) (bool, error)
	// CancelRequested reports whether a cancel flag is set for the job.
	CancelRequested(ctx context.Context, id uint) (bool, error)
	// ResumableJobs returns queued jobs plus running jobs not touched since
	// the cutoff, candidates for crash recovery.
	ResumableJobs(ctx context.Context, cutoff time.Time) ([]*models.WhatsAppBulkJob, error)
	// SentToday counts sends attempted today, input to the daily quota guard.
	SentToday(ctx context.Context, dayStart time.Time) (int64, error)
	ListSends(ctx context.Context, jobID uint) ([]*models.WhatsAppSend, error)
}

// IntakeStore covers lead intake persistence.
type IntakeStore interface {
	CreateUnassigned(ctx context.Context, ul *models.UnassignedLead) error
	// NextCustomerName atomically increments the default-name counter and
	// returns the formatted placeholder name.
	NextCustomerName(ctx context.Context) (string, error)
	// UpdateLeadFollowup moves a lead's followup date and appends the
	// worked-lead event in the same transaction.
	UpdateLeadFollowup(ctx context.Context, leadID, userID uint, followup time.Time) (*models.Lead, error)
	// AppendCallLog records a call against an existing lead. History is
	// append-only.
	AppendCallLog(ctx context.Context, entry *models.CallLog) error
	// ListCallLogs returns a lead's call history, most recent first.
	ListCallLogs(ctx context.Context, leadID uint, limit int) ([]*models.CallLog, error)
}

// PushStore covers web push subscription persistence.
type PushStore interface {
	SubscriptionsForUser(ctx context.Context, userID uint) ([]*models.PushSubscription, error)
	SaveSubscription(ctx context.Context, sub *models.PushSubscription) error
	// DeleteSubscription removes a dead endpoint (provider returned 404/410).
	DeleteSubscription(ctx context.Context, id uint) error
}
