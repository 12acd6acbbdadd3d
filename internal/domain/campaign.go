package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a Campaign.
type Status string

const (
	StatusDraft     Status = "draft"     // Created, not yet dispatched
	StatusActive    Status = "active"    // Batch loop running (or interrupted mid-run)
	StatusPaused    Status = "paused"    // Operator stop, resumable
	StatusFinalized Status = "finalized" // All batches processed
)

// Outcome values recorded on a SentRecord. The Portuguese values are the
// wire/database values the reporting side expects.
const (
	OutcomeSent   = "enviado"
	OutcomeFailed = "falha"
	OutcomeTest   = "teste"
)

// BatchConfig controls the pacing of one campaign run.
type BatchConfig struct {
	BatchSize     int           `json:"batch_size"`
	MinInterval   time.Duration `json:"min_interval"`
	MaxInterval   time.Duration `json:"max_interval"`
	BatchDelayMin time.Duration `json:"batch_delay_min"`
	BatchDelayMax time.Duration `json:"batch_delay_max"`
	Cooldown      time.Duration `json:"cooldown"`
	MaxRetries    int           `json:"max_retries"`
	SendTimeout   time.Duration `json:"send_timeout"`
}

// DefaultBatchConfig returns the pacing used when a campaign does not
// override it. The per-message interval is the core anti-ban control.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:     200,
		MinInterval:   7 * time.Second,
		MaxInterval:   15 * time.Second,
		BatchDelayMin: 30 * time.Second,
		BatchDelayMax: 90 * time.Second,
		Cooldown:      24 * time.Hour,
		MaxRetries:    2,
		SendTimeout:   30 * time.Second,
	}
}

// Conservative returns a slower copy of the config, used when resuming a
// previously interrupted run.
func (c BatchConfig) Conservative() BatchConfig {
	out := c
	out.BatchSize = c.BatchSize / 2
	if out.BatchSize < 1 {
		out.BatchSize = 1
	}
	out.BatchDelayMin = c.BatchDelayMin * 2
	out.BatchDelayMax = c.BatchDelayMax * 2
	return out
}

// CampaignMeta is the structured metadata persisted with a campaign so an
// interrupted run can be reconstructed. It replaces the loose key/value bags
// the dashboard used to pass around.
type CampaignMeta struct {
	Recipients  []string    `json:"recipients"` // validated, deduplicated list
	Batch       BatchConfig `json:"batch"`
	BatchCursor int         `json:"batch_cursor"` // next batch index to process
	Test        bool        `json:"test"`         // teste campaigns are never auto-resumed
}

// Campaign is one broadcast run: a message template plus a recipient list.
type Campaign struct {
	ID          uuid.UUID
	Name        string
	Template    string
	Status      Status
	SessionName string

	Recipients int // validated recipient total
	Sent       int
	Failed     int
	Skipped    int // duplicate / blacklisted / cooldown suppressions

	Meta        CampaignMeta
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewCampaign creates a draft campaign with a generated ID.
func NewCampaign(name, template, session string, recipients []string, batch BatchConfig) Campaign {
	now := time.Now().UTC()
	return Campaign{
		ID:          uuid.New(),
		Name:        name,
		Template:    template,
		Status:      StatusDraft,
		SessionName: session,
		Recipients:  len(recipients),
		Meta: CampaignMeta{
			Recipients: recipients,
			Batch:      batch,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SentRecord is one durable delivery attempt the processor chose to persist.
// Records are insert-only; (campaign, phone) uniqueness is enforced by the
// store, not application memory.
type SentRecord struct {
	ID           uint
	CampaignID   uuid.UUID
	Phone        string // canonical digits-only, country-code prefixed
	Status       string // enviado, falha, teste
	SentAt       time.Time
	SessionName  string
	VariantIndex int
	ProviderID   string // message id returned by the transport, when available
}

// BlacklistEntry marks a recipient as ineligible for any campaign while active.
type BlacklistEntry struct {
	ID         uint
	Phone      string
	Reason     string
	CampaignID *uuid.UUID // campaign that originated the entry, if any
	Active     bool
	CreatedAt  time.Time
}

// CounterDelta is the progress increment persisted between batches.
type CounterDelta struct {
	Sent        int
	Failed      int
	Skipped     int
	BatchCursor int
}

// SendRecordResult is the outcome of DeliveryStateStore.RecordSend. A
// duplicate is a normal control-flow branch, not an error.
type SendRecordResult struct {
	Recorded bool
	ID       uint
	Reason   string
}

// CampaignResult is the summary report produced when a run finishes or is
// interrupted. Every validated recipient lands in exactly one bucket.
type CampaignResult struct {
	CampaignID  uuid.UUID
	Recipients  int
	Sent        int
	Failed      int
	Skipped     int
	Duration    time.Duration
	Interrupted bool
}

// SuccessRate returns sent / recipients in percent.
func (r CampaignResult) SuccessRate() float64 {
	if r.Recipients == 0 {
		return 0
	}
	return float64(r.Sent) / float64(r.Recipients) * 100
}

// Domain errors
var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrDuplicateSend     = errors.New("send already recorded for recipient")
	ErrInvalidStatus     = errors.New("invalid status transition")
	ErrInvalidRecipients = errors.New("no valid recipients")
	ErrEmptyTemplate     = errors.New("message template is empty")
	ErrNoTransport       = errors.New("no transport session available")
)

// CanTransitionTo reports whether a status change is legal: transitions only
// move forward, except paused and active which flip both ways.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusActive
	case StatusActive:
		return next == StatusPaused || next == StatusFinalized
	case StatusPaused:
		return next == StatusActive
	default:
		return false
	}
}
