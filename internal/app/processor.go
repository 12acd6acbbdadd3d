package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"whatsapp-broadcast/internal/domain"
	"whatsapp-broadcast/internal/ports"
	"whatsapp-broadcast/internal/variation"

	"github.com/google/uuid"
)

// Processor runs a campaign's batch loop: suppression checks, variant
// rotation, the send itself, durable outcome recording and the randomized
// pacing between sends and between batches. Recipients are processed
// strictly sequentially; the transport penalizes anything faster.
type Processor struct {
	store     ports.DeliveryStateStore
	generator *variation.Generator
	log       *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewProcessor wires a Processor with its dependencies.
func NewProcessor(store ports.DeliveryStateStore, generator *variation.Generator, log *slog.Logger) *Processor {
	return &Processor{
		store:     store,
		generator: generator,
		log:       log,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes a campaign from its persisted batch cursor using the batch
// configuration stored with the campaign.
func (p *Processor) Run(ctx context.Context, c *domain.Campaign, transport ports.SendCapability) (domain.CampaignResult, error) {
	return p.run(ctx, c, transport, c.Meta.BatchCursor*campaignBatchSize(c), c.Meta.Batch)
}

// Resume re-enters the batch loop at startBatch with an explicit (usually
// more conservative) configuration. The cursor counts batches of the
// campaign's ORIGINAL batch size, so it is converted to a recipient offset
// before the remainder is re-partitioned under cfg. The offset is an
// optimization only: every recipient is still re-checked against the store,
// so overlapping resumes cannot double-send.
func (p *Processor) Resume(ctx context.Context, c *domain.Campaign, transport ports.SendCapability, startBatch int, cfg domain.BatchConfig) (domain.CampaignResult, error) {
	return p.run(ctx, c, transport, startBatch*campaignBatchSize(c), cfg)
}

func (p *Processor) run(ctx context.Context, c *domain.Campaign, transport ports.SendCapability, startRecipient int, cfg domain.BatchConfig) (domain.CampaignResult, error) {
	start := time.Now()
	result := domain.CampaignResult{CampaignID: c.ID, Recipients: len(c.Meta.Recipients)}

	if transport == nil || !transport.Connected() {
		// Leave the campaign as-is; recovery picks it up when the session
		// comes back.
		return result, domain.ErrNoTransport
	}

	cfg = withDefaults(cfg)
	variants := p.generator.Generate(c.Template)

	// The persisted cursor always counts batches of the original size, so
	// only the unprocessed remainder is partitioned under cfg.
	originalSize := campaignBatchSize(c)
	if startRecipient > len(c.Meta.Recipients) {
		startRecipient = len(c.Meta.Recipients)
	}
	batches := partition(c.Meta.Recipients[startRecipient:], cfg.BatchSize)
	processed := startRecipient

	outcome := domain.OutcomeSent
	if c.Meta.Test {
		outcome = domain.OutcomeTest
	}

	log := p.log.With("campaign_id", c.ID, "session", transport.SessionName())
	log.Info("campaign run starting",
		"recipients", len(c.Meta.Recipients),
		"batches", len(batches),
		"start_offset", startRecipient,
		"test", c.Meta.Test)

	sends := 0 // round-robin position over the variant set

	for bi := 0; bi < len(batches); bi++ {
		var delta domain.CounterDelta

		for ri, recipient := range batches[bi] {
			if err := ctx.Err(); err != nil {
				result.Duration = time.Since(start)
				result.Interrupted = true
				return result, err
			}

			paused, err := p.isPaused(ctx, c.ID)
			if err != nil {
				log.Warn("pause check failed, continuing", "err", err)
			} else if paused {
				log.Info("campaign paused by operator", "batch", bi, "recipient_index", ri)
				result.Duration = time.Since(start)
				result.Interrupted = true
				return result, nil
			}

			skip, err := p.shouldSuppress(ctx, c.ID, recipient, cfg.Cooldown)
			if err != nil {
				// Store unreachable: counted as failed, never sent blind.
				log.Error("suppression check failed", "to", recipient, "batch", bi, "err", err)
				delta.Failed++
				result.Failed++
				continue
			}
			if skip {
				delta.Skipped++
				result.Skipped++
				continue
			}

			variant := variants[sends%len(variants)]
			variantIdx := sends % len(variants)
			sends++

			receipt, sendErr := p.sendWithRetry(ctx, transport, recipient, variant, cfg)
			if sendErr != nil {
				// No record: the recipient stays eligible for a later
				// recovery pass. Failures are never retried inline beyond
				// the per-send budget.
				log.Error("send failed", "to", recipient, "batch", bi, "err", sendErr)
				delta.Failed++
				result.Failed++
			} else {
				delta.Sent++
				result.Sent++
				p.recordSend(ctx, log, domain.SentRecord{
					CampaignID:   c.ID,
					Phone:        recipient,
					Status:       outcome,
					SentAt:       time.Now().UTC(),
					SessionName:  transport.SessionName(),
					VariantIndex: variantIdx,
					ProviderID:   receipt.MessageID,
				})
			}

			// The inter-message delay follows every attempted send, failed
			// ones included; a failing streak must not hammer the transport.
			if err := p.pause(ctx, cfg.MinInterval, cfg.MaxInterval); err != nil {
				result.Duration = time.Since(start)
				result.Interrupted = true
				return result, err
			}
		}

		// Flush progress at the batch boundary; a crash loses at most one
		// batch of counters, never a sent record. The cursor is written in
		// units of the original batch size regardless of cfg.
		processed += len(batches[bi])
		if err := p.store.UpdateCampaignProgress(ctx, c.ID, domain.CounterDelta{
			Sent:        delta.Sent,
			Failed:      delta.Failed,
			Skipped:     delta.Skipped,
			BatchCursor: processed / originalSize,
		}); err != nil {
			log.Error("progress update failed", "batch", bi, "err", err)
		}

		log.Info("batch complete",
			"batch", bi,
			"sent", delta.Sent,
			"failed", delta.Failed,
			"skipped", delta.Skipped)

		if bi < len(batches)-1 {
			if err := p.pause(ctx, cfg.BatchDelayMin, cfg.BatchDelayMax); err != nil {
				result.Duration = time.Since(start)
				result.Interrupted = true
				return result, err
			}
		}
	}

	if err := p.store.FinalizeCampaign(ctx, c.ID); err != nil {
		return result, fmt.Errorf("finalize campaign: %w", err)
	}

	result.Duration = time.Since(start)
	log.Info("campaign finalized",
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration", result.Duration,
		"success_rate", fmt.Sprintf("%.1f%%", result.SuccessRate()))
	return result, nil
}

// shouldSuppress applies blacklist, per-campaign duplicate and global
// cooldown checks. No network call happens for a suppressed recipient.
func (p *Processor) shouldSuppress(ctx context.Context, campaignID uuid.UUID, recipient string, cooldown time.Duration) (bool, error) {
	blocked, err := p.store.IsBlacklisted(ctx, recipient)
	if err != nil {
		return false, fmt.Errorf("blacklist check: %w", err)
	}
	if blocked {
		return true, nil
	}

	sent, err := p.store.WasAlreadySent(ctx, &campaignID, recipient, 0)
	if err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	if sent {
		return true, nil
	}

	if cooldown > 0 {
		recent, err := p.store.WasAlreadySent(ctx, nil, recipient, cooldown)
		if err != nil {
			return false, fmt.Errorf("cooldown check: %w", err)
		}
		if recent {
			return true, nil
		}
	}

	return false, nil
}

// isPaused reloads the campaign status so an operator stop takes effect at
// the next recipient boundary, never mid-send.
func (p *Processor) isPaused(ctx context.Context, id uuid.UUID) (bool, error) {
	c, err := p.store.GetCampaign(ctx, id)
	if err != nil {
		return false, err
	}
	return c.Status == domain.StatusPaused, nil
}

// sendWithRetry wraps each attempt in the per-send timeout and retries up to
// cfg.MaxRetries extra times before giving up on the recipient.
func (p *Processor) sendWithRetry(ctx context.Context, transport ports.SendCapability, recipient, message string, cfg domain.BatchConfig) (ports.DeliveryReceipt, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		receipt, err := transport.SendText(sendCtx, recipient, message)
		cancel()
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < cfg.MaxRetries {
			if err := p.pause(ctx, time.Second, 3*time.Second); err != nil {
				break
			}
		}
	}
	return ports.DeliveryReceipt{}, lastErr
}

// recordSend persists the outcome of a delivered message. The message is
// already out, so a persistence failure is logged as a discrepancy rather
// than propagated; a concurrent duplicate means another writer won the race.
func (p *Processor) recordSend(ctx context.Context, log *slog.Logger, rec domain.SentRecord) {
	res, err := p.store.RecordSend(ctx, rec)
	if err != nil {
		log.Error("sent record not persisted, counters may drift", "to", rec.Phone, "err", err)
		return
	}
	if !res.Recorded {
		log.Warn("send already recorded by another writer", "to", rec.Phone, "reason", res.Reason)
	}
}

// pause sleeps a uniformly random duration in [min, max], or returns early
// when ctx is cancelled.
func (p *Processor) pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		p.mu.Lock()
		d = min + time.Duration(p.rng.Int63n(int64(max-min)))
		p.mu.Unlock()
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// campaignBatchSize is the batch size the campaign was created with, the
// unit the persisted batch cursor counts in.
func campaignBatchSize(c *domain.Campaign) int {
	if c.Meta.Batch.BatchSize > 0 {
		return c.Meta.Batch.BatchSize
	}
	return domain.DefaultBatchConfig().BatchSize
}

func withDefaults(cfg domain.BatchConfig) domain.BatchConfig {
	def := domain.DefaultBatchConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	return cfg
}

// partition splits recipients into fixed-size batches, preserving order.
func partition(recipients []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		out = append(out, recipients[start:end])
	}
	return out
}
