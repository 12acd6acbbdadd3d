package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"whatsapp-broadcast/internal/domain"
	"whatsapp-broadcast/internal/phone"
	"whatsapp-broadcast/internal/ports"

	"github.com/google/uuid"
)

// CampaignService is the application-facing entry point: it validates
// requests, persists campaigns and hands the actual run to a worker via the
// job queue. It never sends messages itself.
type CampaignService struct {
	store     ports.DeliveryStateStore
	publisher ports.JobPublisher
	region    phone.Region
	defaults  domain.BatchConfig
	log       *slog.Logger
}

// NewCampaignService wires the service with its collaborators.
func NewCampaignService(store ports.DeliveryStateStore, publisher ports.JobPublisher, region phone.Region, defaults domain.BatchConfig, log *slog.Logger) *CampaignService {
	return &CampaignService{
		store:     store,
		publisher: publisher,
		region:    region,
		defaults:  defaults,
		log:       log,
	}
}

// StartCampaignRequest carries the operator's input for a new campaign.
type StartCampaignRequest struct {
	Name        string
	Template    string
	Recipients  []string
	SessionName string
	Test        bool
	BatchSize   int // optional override, 0 keeps the configured default
}

// StartCampaign validates and persists a campaign, activates it and enqueues
// the run. Invalid numbers are dropped up front; an empty result after
// normalization is an error, not an empty run.
func (s *CampaignService) StartCampaign(ctx context.Context, req StartCampaignRequest) (*domain.Campaign, error) {
	if strings.TrimSpace(req.Template) == "" {
		return nil, domain.ErrEmptyTemplate
	}
	if req.SessionName == "" {
		return nil, domain.ErrNoTransport
	}

	recipients := phone.NormalizeList(req.Recipients, s.region)
	if len(recipients) == 0 {
		return nil, domain.ErrInvalidRecipients
	}
	dropped := len(req.Recipients) - len(recipients)

	cfg := s.defaults
	if req.BatchSize > 0 {
		cfg.BatchSize = req.BatchSize
	}

	c := domain.NewCampaign(req.Name, req.Template, req.SessionName, recipients, cfg)
	c.Meta.Test = req.Test

	id, err := s.store.CreateCampaign(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	c.ID = id

	if err := s.store.UpdateCampaignStatus(ctx, id, domain.StatusActive); err != nil {
		return nil, fmt.Errorf("activate campaign: %w", err)
	}
	c.Status = domain.StatusActive

	if err := s.publisher.Publish(ctx, ports.CampaignJob{
		CampaignID:  id,
		SessionName: req.SessionName,
	}); err != nil {
		// The campaign stays active; the next recovery pass for this session
		// will pick it up even though the job never reached the queue.
		s.log.Error("enqueue campaign job", "campaign_id", id, "err", err)
		return nil, fmt.Errorf("enqueue campaign: %w", err)
	}

	s.log.Info("campaign accepted",
		"campaign_id", id,
		"name", req.Name,
		"session", req.SessionName,
		"recipients", len(recipients),
		"dropped", dropped,
		"test", req.Test)
	return &c, nil
}

// CampaignStatus is the read model returned to operators: the campaign row
// plus per-outcome totals recomputed from the sent records.
type CampaignStatus struct {
	Campaign *domain.Campaign
	Stats    map[string]int
}

// GetCampaignStatus returns a campaign and its record-derived totals.
func (s *CampaignService) GetCampaignStatus(ctx context.Context, id uuid.UUID) (*CampaignStatus, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	stats, err := s.store.GetCampaignStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}

	return &CampaignStatus{Campaign: c, Stats: stats}, nil
}

// StopCampaign requests a pause. The running worker observes the status at
// the next recipient boundary, so in-flight sends finish cleanly.
func (s *CampaignService) StopCampaign(ctx context.Context, id uuid.UUID) error {
	if err := s.store.UpdateCampaignStatus(ctx, id, domain.StatusPaused); err != nil {
		return err
	}
	s.log.Info("campaign stop requested", "campaign_id", id)
	return nil
}

// ResumeCampaign reactivates a paused campaign and enqueues a resume job
// that re-enters the batch loop at the persisted batch cursor.
func (s *CampaignService) ResumeCampaign(ctx context.Context, id uuid.UUID) error {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.UpdateCampaignStatus(ctx, id, domain.StatusActive); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, ports.CampaignJob{
		CampaignID:  id,
		SessionName: c.SessionName,
		Resume:      true,
		StartBatch:  c.Meta.BatchCursor,
	}); err != nil {
		// Same stance as StartCampaign: the campaign is active again, so the
		// next recovery pass picks it up even without the job.
		s.log.Error("enqueue resume job", "campaign_id", id, "err", err)
		return fmt.Errorf("enqueue resume: %w", err)
	}

	s.log.Info("campaign resume requested", "campaign_id", id, "start_batch", c.Meta.BatchCursor)
	return nil
}

// Blacklist suppresses a phone number across all campaigns. The raw input is
// normalized the same way campaign recipients are.
func (s *CampaignService) Blacklist(ctx context.Context, rawPhone, reason string, campaignID *uuid.UUID) error {
	canonical, ok := phone.Normalize(rawPhone, s.region)
	if !ok {
		return domain.ErrInvalidRecipients
	}
	return s.store.AddToBlacklist(ctx, domain.BlacklistEntry{
		Phone:      canonical,
		Reason:     reason,
		CampaignID: campaignID,
		Active:     true,
	})
}

// Unblacklist reactivates a suppressed phone number.
func (s *CampaignService) Unblacklist(ctx context.Context, rawPhone string) error {
	canonical, ok := phone.Normalize(rawPhone, s.region)
	if !ok {
		return domain.ErrInvalidRecipients
	}
	return s.store.DeactivateBlacklistEntry(ctx, canonical)
}
