package models

import (
	"time"

	"gorm.io/datatypes"
)

// Bulk job statuses.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Per-recipient send statuses.
const (
	SendStatusSent   = "sent"
	SendStatusFailed = "failed"
)

// Lead statuses. "Completed" and "Feedback" are terminal for capacity math.
const (
	LeadStatusNewLead       = "New Lead"
	LeadStatusOpen          = "Open"
	LeadStatusNeedsFollowup = "Needs Followup"
	LeadStatusConfirmed     = "Confirmed"
	LeadStatusDidNotPickUp  = "Did Not Pick Up"
	LeadStatusCompleted     = "Completed"
	LeadStatusFeedback      = "Feedback"
)

// Call outcomes logged against a lead. The unreached ones feed scoring.
const (
	CallStatusConnected   = "connected"
	CallStatusNoAnswer    = "no_answer"
	CallStatusBusy        = "busy"
	CallStatusSwitchedOff = "switched_off"
	CallStatusWrongNumber = "wrong_number"
)

// Call directions.
const (
	CallTypeOutgoing = "outgoing"
	CallTypeIncoming = "incoming"
)

// Priority bands derived from lead scores.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// User is an agent who can receive and work leads.
type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"size:120;not null" json:"name"`
	Email     string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role      string `gorm:"size:40;default:agent" json:"role"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnassignedLead is the intake pool an assignment batch drains.
type UnassignedLead struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CustomerName string     `gorm:"size:120;not null" json:"customer_name"`
	Mobile       string     `gorm:"size:20;index;not null" json:"mobile"`
	City         string     `gorm:"size:80" json:"city"`
	Source       string     `gorm:"size:80" json:"source"`
	Remarks      string     `gorm:"type:text" json:"remarks"`
	FollowupDate *time.Time `json:"followup_date,omitempty"`
	Status       string     `gorm:"size:40;default:New Lead" json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Lead is an assigned lead owned by an agent.
type Lead struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CustomerName   string     `gorm:"size:120;not null" json:"customer_name"`
	Mobile         string     `gorm:"size:20;index;not null" json:"mobile"`
	City           string     `gorm:"size:80" json:"city"`
	Source         string     `gorm:"size:80" json:"source"`
	Remarks        string     `gorm:"type:text" json:"remarks"`
	Status         string     `gorm:"size:40;index;default:New Lead" json:"status"`
	FollowupDate   *time.Time `gorm:"index" json:"followup_date,omitempty"`
	AssignedUserID *uint      `gorm:"index" json:"assigned_user_id,omitempty"`
	AssignedUser   *User      `gorm:"foreignKey:AssignedUserID" json:"assigned_user,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TeamAssignment is the append-only ownership history of a lead.
type TeamAssignment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	LeadID         uint      `gorm:"index;not null" json:"lead_id"`
	UserID         uint      `gorm:"index;not null" json:"user_id"`
	AssignmentType string    `gorm:"size:20;default:auto" json:"assignment_type"`
	Reason         string    `gorm:"size:255" json:"reason,omitempty"`
	IsActive       bool      `gorm:"index;default:true" json:"is_active"`
	AssignedAt     time.Time `gorm:"autoCreateTime" json:"assigned_at"`
}

// LeadScore is a persisted scoring result with its breakdown.
type LeadScore struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	LeadID          uint      `gorm:"index;not null" json:"lead_id"`
	Score           float64   `gorm:"not null" json:"score"`
	Priority        string    `gorm:"size:10;not null" json:"priority"`
	OverduePoints   float64   `json:"overdue_points"`
	StatusPoints    float64   `json:"status_points"`
	EngagementPoints float64  `json:"engagement_points"`
	RecencyPoints   float64   `json:"recency_points"`
	FirstTimePoints float64   `json:"first_time_points"`
	UnreachedPoints float64   `json:"unreached_points"`
	ComputedAt      time.Time `gorm:"autoCreateTime" json:"computed_at"`
}

// DailyFollowupCount is one agent's snapshot for one calendar day.
// The unique index makes snapshot re-runs no-ops.
type DailyFollowupCount struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex:idx_daily_user_date;not null" json:"user_id"`
	Date         time.Time `gorm:"uniqueIndex:idx_daily_user_date;type:date;not null" json:"date"`
	DueCount     int       `gorm:"not null" json:"due_count"`
	OverdueCount int       `gorm:"not null" json:"overdue_count"`
	OpenCount    int       `gorm:"not null" json:"open_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// CallLog is the append-only call history of a lead.
type CallLog struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	LeadID          uint      `gorm:"index;not null" json:"lead_id"`
	UserID          uint      `gorm:"index;not null" json:"user_id"`
	CallType        string    `gorm:"size:20;default:outgoing" json:"call_type"`
	CallStatus      string    `gorm:"size:20;index;not null" json:"call_status"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	Remarks         string    `gorm:"size:500" json:"remarks,omitempty"`
	CalledAt        time.Time `gorm:"autoCreateTime;index" json:"called_at"`
}

// WorkedLead records that an agent touched a lead's followup date.
type WorkedLead struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	LeadID   uint      `gorm:"index;not null" json:"lead_id"`
	UserID   uint      `gorm:"index;not null" json:"user_id"`
	WorkedAt time.Time `gorm:"autoCreateTime" json:"worked_at"`
}

// TeleobiTemplateCache is a locally cached provider template.
type TeleobiTemplateCache struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TemplateID    string         `gorm:"size:80;uniqueIndex;not null" json:"template_id"`
	Name          string         `gorm:"size:160;not null" json:"name"`
	Slug          string         `gorm:"size:160;not null" json:"slug"`
	Language      string         `gorm:"size:10" json:"language"`
	Category      string         `gorm:"size:40" json:"category"`
	Status        string         `gorm:"size:30" json:"status"`
	Body          string         `gorm:"type:text" json:"body"`
	VariableCount int            `json:"variable_count"`
	Raw           datatypes.JSON `json:"raw,omitempty"`
	SyncedAt      time.Time      `gorm:"index" json:"synced_at"`
}

// WhatsAppBulkJob is a durable bulk dispatch job. Recipients and Variables
// are frozen at creation so a resume replays the exact same inputs.
type WhatsAppBulkJob struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	TemplateID      string         `gorm:"size:80;not null" json:"template_id"`
	TemplateSlug    string         `gorm:"size:160;not null" json:"template_slug"`
	Recipients      datatypes.JSON `gorm:"not null" json:"recipients"`
	Variables       datatypes.JSON `json:"variables,omitempty"`
	TotalCount      int            `gorm:"not null" json:"total_count"`
	ProcessedCount  int            `gorm:"not null;default:0" json:"processed_count"`
	SentCount       int            `gorm:"not null;default:0" json:"sent_count"`
	FailedCount     int            `gorm:"not null;default:0" json:"failed_count"`
	Status          string         `gorm:"size:20;index;default:queued" json:"status"`
	CancelRequested bool           `gorm:"default:false" json:"cancel_requested"`
	Error           string         `gorm:"type:text" json:"error,omitempty"`
	CreatedBy       *uint          `json:"created_by,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`
}

// WhatsAppSend is the terminal per-recipient outcome of a bulk job.
// The unique (job, recipient index) pair rules out duplicate commits.
type WhatsAppSend struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	JobID          uint      `gorm:"uniqueIndex:idx_send_job_recipient;not null" json:"job_id"`
	RecipientIndex int       `gorm:"uniqueIndex:idx_send_job_recipient;not null" json:"recipient_index"`
	Mobile         string    `gorm:"size:20;not null" json:"mobile"`
	Status         string    `gorm:"size:10;not null" json:"status"`
	WaMessageID    string    `gorm:"size:120" json:"wa_message_id,omitempty"`
	Attempts       int       `gorm:"not null;default:1" json:"attempts"`
	Error          string    `gorm:"size:500" json:"error,omitempty"`
	SentAt         time.Time `gorm:"autoCreateTime" json:"sent_at"`
}

// CustomerNameCounter backs the "Customer N" default-name sequence.
// A single row holds the last issued number and is bumped atomically.
type CustomerNameCounter struct {
	ID        uint `gorm:"primaryKey"`
	LastValue int  `gorm:"not null;default:0"`
}

// PushSubscription is a stored web push endpoint for an agent's browser.
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Endpoint  string    `gorm:"size:500;uniqueIndex;not null" json:"endpoint"`
	P256dh    string    `gorm:"size:255;not null" json:"p256dh"`
	Auth      string    `gorm:"size:255;not null" json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

// AgentDayStats is the snapshot input computed per agent, not a table.
type AgentDayStats struct {
	UserID       uint
	DueCount     int
	OverdueCount int
	OpenCount    int
}

// AllModels lists every table for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&UnassignedLead{},
		&Lead{},
		&TeamAssignment{},
		&LeadScore{},
		&DailyFollowupCount{},
		&CallLog{},
		&WorkedLead{},
		&TeleobiTemplateCache{},
		&WhatsAppBulkJob{},
		&WhatsAppSend{},
		&CustomerNameCounter{},
		&PushSubscription{},
	}
}
