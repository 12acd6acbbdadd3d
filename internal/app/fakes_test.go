package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"whatsapp-broadcast/internal/domain"
	"whatsapp-broadcast/internal/ports"

	"github.com/google/uuid"
)

// fakeStore is an in-memory DeliveryStateStore with the same invariants the
// real store enforces: status transitions, (campaign, phone) uniqueness and
// duplicate-as-result semantics.
type fakeStore struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]*domain.Campaign
	records   []domain.SentRecord
	blacklist map[string]bool
	nextID    uint

	suppressionErr error // injected failure for the read checks
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns: make(map[uuid.UUID]*domain.Campaign),
		blacklist: make(map[string]bool),
	}
}

func (f *fakeStore) CreateCampaign(_ context.Context, c domain.Campaign) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := c
	f.campaigns[c.ID] = &cp
	return c.ID, nil
}

func (f *fakeStore) GetCampaign(_ context.Context, id uuid.UUID) (*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) UpdateCampaignStatus(_ context.Context, id uuid.UUID, status domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	if !c.Status.CanTransitionTo(status) {
		return domain.ErrInvalidStatus
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) UpdateCampaignProgress(_ context.Context, id uuid.UUID, delta domain.CounterDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	c.Sent += delta.Sent
	c.Failed += delta.Failed
	c.Skipped += delta.Skipped
	c.Meta.BatchCursor = delta.BatchCursor
	return nil
}

func (f *fakeStore) FinalizeCampaign(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	if !c.Status.CanTransitionTo(domain.StatusFinalized) {
		return domain.ErrInvalidStatus
	}
	now := time.Now().UTC()
	c.Status = domain.StatusFinalized
	c.CompletedAt = &now
	return nil
}

func (f *fakeStore) FindInterruptedCampaigns(_ context.Context, sessionName string) ([]domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Campaign
	for _, c := range f.campaigns {
		if c.Status != domain.StatusActive && c.Status != domain.StatusPaused {
			continue
		}
		if sessionName != "" && c.SessionName != sessionName {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) GetPendingRecipients(_ context.Context, id uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, domain.ErrCampaignNotFound
	}
	done := make(map[string]bool)
	for _, r := range f.records {
		if r.CampaignID == id && (r.Status == domain.OutcomeSent || r.Status == domain.OutcomeTest) {
			done[r.Phone] = true
		}
	}
	var pending []string
	for _, phone := range c.Meta.Recipients {
		if !done[phone] {
			pending = append(pending, phone)
		}
	}
	return pending, nil
}

func (f *fakeStore) CountSentRecords(_ context.Context, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.records {
		if r.CampaignID == id && (r.Status == domain.OutcomeSent || r.Status == domain.OutcomeTest) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetCampaignStats(_ context.Context, id uuid.UUID) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := make(map[string]int)
	for _, r := range f.records {
		if r.CampaignID == id {
			stats[r.Status]++
		}
	}
	return stats, nil
}

func (f *fakeStore) RecordSend(_ context.Context, rec domain.SentRecord) (domain.SendRecordResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.CampaignID == rec.CampaignID && r.Phone == rec.Phone {
			return domain.SendRecordResult{Recorded: false, ID: r.ID, Reason: "duplicate"}, nil
		}
	}
	f.nextID++
	rec.ID = f.nextID
	f.records = append(f.records, rec)
	return domain.SendRecordResult{Recorded: true, ID: rec.ID}, nil
}

func (f *fakeStore) WasAlreadySent(_ context.Context, campaignID *uuid.UUID, phone string, within time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.suppressionErr != nil {
		return false, f.suppressionErr
	}
	cutoff := time.Time{}
	if within > 0 {
		cutoff = time.Now().UTC().Add(-within)
	}
	for _, r := range f.records {
		if r.Phone != phone {
			continue
		}
		if r.Status != domain.OutcomeSent && r.Status != domain.OutcomeTest {
			continue
		}
		if campaignID != nil && r.CampaignID != *campaignID {
			continue
		}
		if r.SentAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) IsBlacklisted(_ context.Context, phone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.suppressionErr != nil {
		return false, f.suppressionErr
	}
	return f.blacklist[phone], nil
}

func (f *fakeStore) AddToBlacklist(_ context.Context, entry domain.BlacklistEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blacklist[entry.Phone] = true
	return nil
}

func (f *fakeStore) DeactivateBlacklistEntry(_ context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blacklist[phone] = false
	return nil
}

func (f *fakeStore) recordsFor(id uuid.UUID) []domain.SentRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SentRecord
	for _, r := range f.records {
		if r.CampaignID == id {
			out = append(out, r)
		}
	}
	return out
}

var _ ports.DeliveryStateStore = (*fakeStore)(nil)

type sendCall struct {
	recipient string
	message   string
}

// fakeTransport records sends and can be told to fail specific recipients.
type fakeTransport struct {
	mu        sync.Mutex
	session   string
	connected bool
	failFor   map[string]bool
	calls     []sendCall
	handlers  []ports.ConnectionHandler
}

func newFakeTransport(session string) *fakeTransport {
	return &fakeTransport{session: session, connected: true, failFor: make(map[string]bool)}
}

func (t *fakeTransport) SendText(ctx context.Context, recipient, message string) (ports.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ports.DeliveryReceipt{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failFor[recipient] {
		return ports.DeliveryReceipt{}, errors.New("transport rejected message")
	}
	t.calls = append(t.calls, sendCall{recipient: recipient, message: message})
	return ports.DeliveryReceipt{MessageID: uuid.NewString(), Timestamp: time.Now().Unix()}, nil
}

func (t *fakeTransport) SessionName() string { return t.session }

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) OnConnectionStateChange(handler ports.ConnectionHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, handler)
}

func (t *fakeTransport) setConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	handlers := make([]ports.ConnectionHandler, len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.Unlock()
	for _, h := range handlers {
		h(t.session, connected)
	}
}

func (t *fakeTransport) sent() []sendCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sendCall, len(t.calls))
	copy(out, t.calls)
	return out
}

func (t *fakeTransport) sentTo() []string {
	var out []string
	for _, c := range t.sent() {
		out = append(out, c.recipient)
	}
	return out
}

var _ ports.SendCapability = (*fakeTransport)(nil)

// fakePublisher captures enqueued jobs.
type fakePublisher struct {
	mu   sync.Mutex
	jobs []ports.CampaignJob
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, job ports.CampaignJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

var _ ports.JobPublisher = (*fakePublisher)(nil)
