package ports

import (
	"context"
	"time"

	"whatsapp-broadcast/internal/domain"

	"github.com/google/uuid"
)

// DeliveryStateStore is the persistence boundary for campaigns, sent records
// and the blacklist. All write methods are safe under concurrent campaign
// runs; the per-(campaign, recipient) uniqueness invariant is enforced by the
// storage layer itself so it survives process restarts.
type DeliveryStateStore interface {
	// CreateCampaign persists a new campaign and returns its ID.
	CreateCampaign(ctx context.Context, c domain.Campaign) (uuid.UUID, error)

	// GetCampaign retrieves a campaign by ID, ErrCampaignNotFound when absent.
	GetCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)

	// UpdateCampaignStatus transitions a campaign, rejecting illegal moves
	// with ErrInvalidStatus.
	UpdateCampaignStatus(ctx context.Context, id uuid.UUID, status domain.Status) error

	// UpdateCampaignProgress applies counter increments and advances the
	// persisted batch cursor. Called at batch boundaries so a crash loses at
	// most one batch of progress.
	UpdateCampaignProgress(ctx context.Context, id uuid.UUID, delta domain.CounterDelta) error

	// FinalizeCampaign sets status finalized and stamps completed_at.
	FinalizeCampaign(ctx context.Context, id uuid.UUID) error

	// FindInterruptedCampaigns returns campaigns left active or paused,
	// optionally filtered by originating session.
	FindInterruptedCampaigns(ctx context.Context, sessionName string) ([]domain.Campaign, error)

	// GetPendingRecipients diffs the campaign's stored recipient list against
	// recipients with a successful SentRecord.
	GetPendingRecipients(ctx context.Context, id uuid.UUID) ([]string, error)

	// CountSentRecords returns the number of successful records for a campaign.
	CountSentRecords(ctx context.Context, id uuid.UUID) (int64, error)

	// GetCampaignStats recomputes per-status totals from sent_records.
	GetCampaignStats(ctx context.Context, id uuid.UUID) (map[string]int, error)

	// RecordSend durably records one attempt. Calling it twice with the same
	// (campaign, phone) yields exactly one row; the second call returns
	// Recorded=false with Reason "duplicate".
	RecordSend(ctx context.Context, rec domain.SentRecord) (domain.SendRecordResult, error)

	// WasAlreadySent reports whether phone received a message within the
	// window. A nil campaignID makes it a global cross-campaign check; a zero
	// window means "ever".
	WasAlreadySent(ctx context.Context, campaignID *uuid.UUID, phone string, within time.Duration) (bool, error)

	// IsBlacklisted reports whether an active blacklist entry exists for phone.
	IsBlacklisted(ctx context.Context, phone string) (bool, error)

	// AddToBlacklist inserts (or reactivates) an entry for phone.
	AddToBlacklist(ctx context.Context, entry domain.BlacklistEntry) error

	// DeactivateBlacklistEntry clears the active flag for phone.
	DeactivateBlacklistEntry(ctx context.Context, phone string) error
}
