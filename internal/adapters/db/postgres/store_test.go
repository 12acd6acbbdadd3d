package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"whatsapp-broadcast/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := NewWithDB(db, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, store.Migrate())
	return store
}

func newTestCampaign(recipients ...string) domain.Campaign {
	c := domain.NewCampaign("promo", "Oferta! Digite COMPRAR", "vendas", recipients, domain.DefaultBatchConfig())
	c.Status = domain.StatusActive
	return c
}

func TestRecordSendIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := newTestCampaign("5511999990001")
	_, err := store.CreateCampaign(ctx, c)
	require.NoError(t, err)

	rec := domain.SentRecord{
		CampaignID:  c.ID,
		Phone:       "5511999990001",
		Status:      domain.OutcomeSent,
		SessionName: "vendas",
	}

	first, err := store.RecordSend(ctx, rec)
	require.NoError(t, err)
	require.True(t, first.Recorded)

	second, err := store.RecordSend(ctx, rec)
	require.NoError(t, err)
	require.False(t, second.Recorded)
	require.Equal(t, "duplicate", second.Reason)

	n, err := store.CountSentRecords(ctx, c.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestWasAlreadySent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := newTestCampaign("5511999990001")
	_, err := store.CreateCampaign(ctx, c)
	require.NoError(t, err)

	_, err = store.RecordSend(ctx, domain.SentRecord{
		CampaignID: c.ID,
		Phone:      "5511999990001",
		Status:     domain.OutcomeSent,
	})
	require.NoError(t, err)

	// Campaign-scoped check, no window.
	sent, err := store.WasAlreadySent(ctx, &c.ID, "5511999990001", 0)
	require.NoError(t, err)
	require.True(t, sent)

	// Global cooldown check across campaigns.
	sent, err = store.WasAlreadySent(ctx, nil, "5511999990001", time.Hour)
	require.NoError(t, err)
	require.True(t, sent)

	// A window in the past does not suppress.
	sent, err = store.WasAlreadySent(ctx, nil, "5511999990001", time.Nanosecond)
	require.NoError(t, err)
	require.False(t, sent)

	sent, err = store.WasAlreadySent(ctx, &c.ID, "5511999990002", 0)
	require.NoError(t, err)
	require.False(t, sent)
}

func TestGetPendingRecipients(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := newTestCampaign("5511999990001", "5511999990002", "5511999990003")
	_, err := store.CreateCampaign(ctx, c)
	require.NoError(t, err)

	_, err = store.RecordSend(ctx, domain.SentRecord{
		CampaignID: c.ID, Phone: "5511999990002", Status: domain.OutcomeSent,
	})
	require.NoError(t, err)

	// Failed records do not consume the recipient: still pending.
	_, err = store.RecordSend(ctx, domain.SentRecord{
		CampaignID: c.ID, Phone: "5511999990003", Status: domain.OutcomeFailed,
	})
	require.NoError(t, err)

	pending, err := store.GetPendingRecipients(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"5511999990001", "5511999990003"}, pending)
}

func TestBlacklistLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	listed, err := store.IsBlacklisted(ctx, "5511999990001")
	require.NoError(t, err)
	require.False(t, listed)

	err = store.AddToBlacklist(ctx, domain.BlacklistEntry{Phone: "5511999990001", Reason: "opt-out"})
	require.NoError(t, err)

	listed, err = store.IsBlacklisted(ctx, "5511999990001")
	require.NoError(t, err)
	require.True(t, listed)

	// Re-adding an existing entry reactivates instead of failing.
	err = store.AddToBlacklist(ctx, domain.BlacklistEntry{Phone: "5511999990001", Reason: "undeliverable"})
	require.NoError(t, err)

	require.NoError(t, store.DeactivateBlacklistEntry(ctx, "5511999990001"))
	listed, err = store.IsBlacklisted(ctx, "5511999990001")
	require.NoError(t, err)
	require.False(t, listed)
}

func TestCampaignStatusTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := domain.NewCampaign("promo", "Oferta!", "vendas", []string{"5511999990001"}, domain.DefaultBatchConfig())
	_, err := store.CreateCampaign(ctx, c)
	require.NoError(t, err)

	// draft -> paused is illegal.
	err = store.UpdateCampaignStatus(ctx, c.ID, domain.StatusPaused)
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	require.NoError(t, store.UpdateCampaignStatus(ctx, c.ID, domain.StatusActive))
	require.NoError(t, store.UpdateCampaignStatus(ctx, c.ID, domain.StatusPaused))
	require.NoError(t, store.UpdateCampaignStatus(ctx, c.ID, domain.StatusActive))
	require.NoError(t, store.FinalizeCampaign(ctx, c.ID))

	got, err := store.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinalized, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Finalized campaigns do not move.
	err = store.UpdateCampaignStatus(ctx, c.ID, domain.StatusActive)
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestUpdateCampaignProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := newTestCampaign("5511999990001", "5511999990002")
	_, err := store.CreateCampaign(ctx, c)
	require.NoError(t, err)

	require.NoError(t, store.UpdateCampaignProgress(ctx, c.ID, domain.CounterDelta{Sent: 2, BatchCursor: 1}))
	require.NoError(t, store.UpdateCampaignProgress(ctx, c.ID, domain.CounterDelta{Sent: 1, Failed: 1, Skipped: 3, BatchCursor: 2}))

	got, err := store.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Sent)
	require.Equal(t, 1, got.Failed)
	require.Equal(t, 3, got.Skipped)
	require.Equal(t, 2, got.Meta.BatchCursor)

	err = store.UpdateCampaignProgress(ctx, uuid.New(), domain.CounterDelta{Sent: 1})
	require.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

func TestFindInterruptedCampaigns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active := newTestCampaign("5511999990001")
	active.SessionName = "vendas"
	_, err := store.CreateCampaign(ctx, active)
	require.NoError(t, err)

	paused := newTestCampaign("5511999990002")
	paused.Status = domain.StatusPaused
	paused.SessionName = "suporte"
	_, err = store.CreateCampaign(ctx, paused)
	require.NoError(t, err)

	done := newTestCampaign("5511999990003")
	done.Status = domain.StatusFinalized
	_, err = store.CreateCampaign(ctx, done)
	require.NoError(t, err)

	all, err := store.FindInterruptedCampaigns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	vendas, err := store.FindInterruptedCampaigns(ctx, "vendas")
	require.NoError(t, err)
	require.Len(t, vendas, 1)
	require.Equal(t, active.ID, vendas[0].ID)
}
