package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"whatsapp-broadcast/internal/domain"
	"whatsapp-broadcast/internal/ports"
)

// Recovery scans for campaigns interrupted by a crash or disconnect and
// resumes them with conservative pacing once the owning transport session is
// back online. Sessions that report connected before any transport is
// registered are queued and recovered on registration.
type Recovery struct {
	store     ports.DeliveryStateStore
	processor *Processor
	log       *slog.Logger

	mu         sync.Mutex
	transports map[string]ports.SendCapability
	waiting    map[string]bool // sessions with interrupted campaigns, transport offline
}

// NewRecovery builds a Recovery over the given store and processor.
func NewRecovery(store ports.DeliveryStateStore, processor *Processor, log *slog.Logger) *Recovery {
	return &Recovery{
		store:      store,
		processor:  processor,
		log:        log,
		transports: make(map[string]ports.SendCapability),
		waiting:    make(map[string]bool),
	}
}

// RegisterTransport makes a session available for recovery and hooks its
// connection events so a reconnect triggers a new recovery pass.
func (r *Recovery) RegisterTransport(t ports.SendCapability) {
	session := t.SessionName()

	r.mu.Lock()
	r.transports[session] = t
	wasWaiting := r.waiting[session]
	delete(r.waiting, session)
	r.mu.Unlock()

	t.OnConnectionStateChange(func(name string, connected bool) {
		if !connected {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if err := r.RecoverSession(ctx, name); err != nil {
				r.log.Error("recovery pass failed", "session", name, "err", err)
			}
		}()
	})

	if wasWaiting && t.Connected() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if err := r.RecoverSession(ctx, session); err != nil {
				r.log.Error("recovery pass failed", "session", session, "err", err)
			}
		}()
	}
}

// RecoverSession finds interrupted campaigns for one session and resumes the
// eligible ones sequentially. Test campaigns and campaigns whose counters
// disagree with their sent records are reported and left alone.
func (r *Recovery) RecoverSession(ctx context.Context, session string) error {
	r.mu.Lock()
	transport := r.transports[session]
	r.mu.Unlock()

	campaigns, err := r.store.FindInterruptedCampaigns(ctx, session)
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		return nil
	}

	if transport == nil || !transport.Connected() {
		r.mu.Lock()
		r.waiting[session] = true
		r.mu.Unlock()
		r.log.Warn("interrupted campaigns waiting for transport",
			"session", session, "count", len(campaigns))
		return nil
	}

	r.log.Info("recovery pass", "session", session, "candidates", len(campaigns))

	for i := range campaigns {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.recoverCampaign(ctx, &campaigns[i], transport)
	}
	return nil
}

func (r *Recovery) recoverCampaign(ctx context.Context, c *domain.Campaign, transport ports.SendCapability) {
	log := r.log.With("campaign_id", c.ID, "session", c.SessionName)

	if c.Meta.Test {
		log.Info("skipping test campaign, rehearsals are not auto-resumed")
		return
	}

	recorded, err := r.store.CountSentRecords(ctx, c.ID)
	if err != nil {
		log.Error("count sent records", "err", err)
		return
	}
	if c.Sent > 0 && recorded == 0 {
		// Counters claim progress that the records do not back up. Resuming
		// here could re-send the whole list, so leave it for an operator.
		log.Warn("counter/record mismatch, not resuming",
			"counter_sent", c.Sent, "records", recorded)
		return
	}

	// Reactivate before anything else: both the finalize branch and the
	// processor require an active campaign.
	if c.Status == domain.StatusPaused {
		if err := r.store.UpdateCampaignStatus(ctx, c.ID, domain.StatusActive); err != nil {
			log.Error("reactivate paused campaign", "err", err)
			return
		}
		c.Status = domain.StatusActive
	}

	pending, err := r.store.GetPendingRecipients(ctx, c.ID)
	if err != nil {
		log.Error("pending recipients", "err", err)
		return
	}
	if len(pending) == 0 {
		log.Info("no pending recipients, finalizing")
		if err := r.store.FinalizeCampaign(ctx, c.ID); err != nil {
			log.Error("finalize recovered campaign", "err", err)
		}
		return
	}

	log.Info("resuming interrupted campaign",
		"pending", len(pending), "batch_cursor", c.Meta.BatchCursor)

	result, err := r.processor.Resume(ctx, c, transport, c.Meta.BatchCursor, c.Meta.Batch.Conservative())
	if err != nil {
		log.Error("resume failed", "err", err)
		return
	}
	log.Info("resume complete",
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"interrupted", result.Interrupted)
}
