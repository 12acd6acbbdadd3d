package app

import (
	"context"
	"testing"
	"time"

	"whatsapp-broadcast/internal/domain"

	"github.com/stretchr/testify/require"
)

func newTestRecovery(store *fakeStore) *Recovery {
	return NewRecovery(store, newTestProcessor(store), testLogger())
}

func TestRecoverSessionResumesInterruptedCampaign(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport("vendas")
	recipients := []string{"5511999990001", "5511999990002", "5511999990003", "5511999990004"}
	c := seedCampaign(t, store, recipients, fastConfig(2))

	// Crash after the first batch: records and counters exist, cursor at 1.
	for _, phone := range recipients[:2] {
		_, err := store.RecordSend(context.Background(), domain.SentRecord{
			CampaignID: c.ID, Phone: phone, Status: domain.OutcomeSent, SentAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.UpdateCampaignProgress(context.Background(), c.ID, domain.CounterDelta{Sent: 2, BatchCursor: 1}))

	r := newTestRecovery(store)
	r.RegisterTransport(transport)
	require.NoError(t, r.RecoverSession(context.Background(), "vendas"))

	require.ElementsMatch(t, recipients[2:], transport.sentTo())
	saved, err := store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinalized, saved.Status)
	// Conservative pacing re-partitions the remainder only; totals stay
	// exactly what one uninterrupted run would have produced.
	require.Equal(t, 4, saved.Sent)
	require.Equal(t, 0, saved.Skipped)
	require.Equal(t, len(recipients), saved.Sent+saved.Failed+saved.Skipped)
}

func TestRecoverSessionReactivatesPausedCampaign(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport("vendas")
	c := seedCampaign(t, store, []string{"5511999990001"}, fastConfig(10))
	require.NoError(t, store.UpdateCampaignStatus(context.Background(), c.ID, domain.StatusPaused))

	r := newTestRecovery(store)
	r.RegisterTransport(transport)
	require.NoError(t, r.RecoverSession(context.Background(), "vendas"))

	require.Equal(t, []string{"5511999990001"}, transport.sentTo())
	saved, err := store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinalized, saved.Status)
}

func TestRecoverSessionSkipsTestCampaigns(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport("vendas")
	c := domain.NewCampaign("rehearsal", "Olá, teste!", "vendas", []string{"5511999990001"}, fastConfig(10))
	c.Meta.Test = true
	c.Status = domain.StatusActive
	_, err := store.CreateCampaign(context.Background(), c)
	require.NoError(t, err)

	r := newTestRecovery(store)
	r.RegisterTransport(transport)
	require.NoError(t, r.RecoverSession(context.Background(), "vendas"))

	require.Empty(t, transport.sent())
	saved, err := store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, saved.Status)
}

func TestRecoverSessionSkipsCounterRecordMismatch(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport("vendas")
	c := seedCampaign(t, store, []string{"5511999990001", "5511999990002"}, fastConfig(10))

	// Counters claim sends but no records back them up.
	require.NoError(t, store.UpdateCampaignProgress(context.Background(), c.ID, domain.CounterDelta{Sent: 2, BatchCursor: 1}))

	r := newTestRecovery(store)
	r.RegisterTransport(transport)
	require.NoError(t, r.RecoverSession(context.Background(), "vendas"))

	require.Empty(t, transport.sent())
	saved, err := store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, saved.Status)
}

func TestRecoverSessionFinalizesWhenNothingPending(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport("vendas")
	c := seedCampaign(t, store, []string{"5511999990001"}, fastConfig(10))

	_, err := store.RecordSend(context.Background(), domain.SentRecord{
		CampaignID: c.ID, Phone: "5511999990001", Status: domain.OutcomeSent, SentAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateCampaignProgress(context.Background(), c.ID, domain.CounterDelta{Sent: 1, BatchCursor: 1}))

	r := newTestRecovery(store)
	r.RegisterTransport(transport)
	require.NoError(t, r.RecoverSession(context.Background(), "vendas"))

	require.Empty(t, transport.sent())
	saved, err := store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinalized, saved.Status)
}

func TestRecoverSessionFinalizesPausedCampaignWithNothingPending(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport("vendas")
	c := seedCampaign(t, store, []string{"5511999990001"}, fastConfig(10))

	_, err := store.RecordSend(context.Background(), domain.SentRecord{
		CampaignID: c.ID, Phone: "5511999990001", Status: domain.OutcomeSent, SentAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateCampaignProgress(context.Background(), c.ID, domain.CounterDelta{Sent: 1, BatchCursor: 1}))
	require.NoError(t, store.UpdateCampaignStatus(context.Background(), c.ID, domain.StatusPaused))

	r := newTestRecovery(store)
	r.RegisterTransport(transport)
	require.NoError(t, r.RecoverSession(context.Background(), "vendas"))

	// A paused campaign must be reactivated first or finalize is illegal and
	// the campaign would show up interrupted on every scan.
	require.Empty(t, transport.sent())
	saved, err := store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFinalized, saved.Status)
}

func TestRecoverSessionWaitsForOfflineTransport(t *testing.T) {
	store := newFakeStore()
	c := seedCampaign(t, store, []string{"5511999990001"}, fastConfig(10))

	r := newTestRecovery(store)
	require.NoError(t, r.RecoverSession(context.Background(), "vendas"))

	// Nothing resumed yet; the session is queued until a transport shows up.
	saved, err := store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, saved.Status)

	transport := newFakeTransport("vendas")
	r.RegisterTransport(transport)

	require.Eventually(t, func() bool {
		saved, err := store.GetCampaign(context.Background(), c.ID)
		return err == nil && saved.Status == domain.StatusFinalized
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"5511999990001"}, transport.sentTo())
}

func TestRecoverSessionIgnoresOtherSessions(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport("vendas")
	c := domain.NewCampaign("other", "Olá!", "suporte", []string{"5511999990001"}, fastConfig(10))
	c.Status = domain.StatusActive
	_, err := store.CreateCampaign(context.Background(), c)
	require.NoError(t, err)

	r := newTestRecovery(store)
	r.RegisterTransport(transport)
	require.NoError(t, r.RecoverSession(context.Background(), "vendas"))

	require.Empty(t, transport.sent())
}

func TestReconnectTriggersRecovery(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport("vendas")
	transport.setConnected(false)
	c := seedCampaign(t, store, []string{"5511999990001"}, fastConfig(10))

	r := newTestRecovery(store)
	r.RegisterTransport(transport)

	transport.setConnected(true)

	require.Eventually(t, func() bool {
		saved, err := store.GetCampaign(context.Background(), c.ID)
		return err == nil && saved.Status == domain.StatusFinalized
	}, 2*time.Second, 10*time.Millisecond)
}
