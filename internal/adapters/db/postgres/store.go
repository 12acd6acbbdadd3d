// Package postgres implements ports.DeliveryStateStore on a relational
// database through gorm. It is the single source of truth for what was
// actually delivered; in-memory state is never trusted across restarts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"whatsapp-broadcast/internal/domain"
	"whatsapp-broadcast/internal/ports"

	"github.com/google/uuid"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const cooldownKeyPrefix = "cooldown:"

// Store implements ports.DeliveryStateStore.
type Store struct {
	db       *gorm.DB
	cache    ports.Cache // optional read-through cooldown cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// New opens a postgres connection and returns a Store.
func New(dsn string, log *slog.Logger) (*Store, error) {
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db, log: log}, nil
}

// NewWithDB wraps an existing gorm session; tests use it with sqlite.
func NewWithDB(db *gorm.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

// WithCache attaches a read-through cooldown cache. The cache only ever
// short-circuits a positive lookup; misses and errors fall through to the
// database.
func (s *Store) WithCache(cache ports.Cache, ttl time.Duration) *Store {
	s.cache = cache
	s.cacheTTL = ttl
	return s
}

// Migrate creates or updates the three durable collections.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&campaignRow{}, &sentRecordRow{}, &blacklistRow{})
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ── Campaigns ────────────────────────────────────────────────────────────────

func (s *Store) CreateCampaign(ctx context.Context, c domain.Campaign) (uuid.UUID, error) {
	row := toCampaignRow(c)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert campaign: %w", err)
	}
	return c.ID, nil
}

func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	var row campaignRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	c := fromCampaignRow(row)
	return &c, nil
}

func (s *Store) UpdateCampaignStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	var row campaignRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrCampaignNotFound
	}
	if err != nil {
		return fmt.Errorf("load campaign status: %w", err)
	}

	if !domain.Status(row.Status).CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatus, row.Status, status)
	}

	// Guard on the previous status so two racing transitions cannot both win.
	res := s.db.WithContext(ctx).Model(&campaignRow{}).
		Where("id = ? AND status = ?", id.String(), row.Status).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("update campaign status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: concurrent transition from %s", domain.ErrInvalidStatus, row.Status)
	}
	return nil
}

func (s *Store) UpdateCampaignProgress(ctx context.Context, id uuid.UUID, delta domain.CounterDelta) error {
	res := s.db.WithContext(ctx).Model(&campaignRow{}).
		Where("id = ?", id.String()).
		Updates(map[string]any{
			"sent":         gorm.Expr("sent + ?", delta.Sent),
			"failed":       gorm.Expr("failed + ?", delta.Failed),
			"skipped":      gorm.Expr("skipped + ?", delta.Skipped),
			"batch_cursor": delta.BatchCursor,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update campaign progress: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

func (s *Store) FinalizeCampaign(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&campaignRow{}).
		Where("id = ? AND status = ?", id.String(), string(domain.StatusActive)).
		Updates(map[string]any{
			"status":       string(domain.StatusFinalized),
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("finalize campaign: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: campaign not active", domain.ErrInvalidStatus)
	}
	return nil
}

func (s *Store) FindInterruptedCampaigns(ctx context.Context, sessionName string) ([]domain.Campaign, error) {
	q := s.db.WithContext(ctx).
		Where("status IN ?", []string{string(domain.StatusActive), string(domain.StatusPaused)})
	if sessionName != "" {
		q = q.Where("session_name = ?", sessionName)
	}

	var rows []campaignRow
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find interrupted campaigns: %w", err)
	}

	out := make([]domain.Campaign, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromCampaignRow(row))
	}
	return out, nil
}

func (s *Store) GetPendingRecipients(ctx context.Context, id uuid.UUID) ([]string, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	var recorded []string
	err = s.db.WithContext(ctx).Model(&sentRecordRow{}).
		Distinct("phone").
		Where("campaign_id = ? AND status IN ?", id.String(), []string{domain.OutcomeSent, domain.OutcomeTest}).
		Pluck("phone", &recorded).Error
	if err != nil {
		return nil, fmt.Errorf("list recorded phones: %w", err)
	}

	done := make(map[string]struct{}, len(recorded))
	for _, p := range recorded {
		done[p] = struct{}{}
	}

	pending := make([]string, 0, len(c.Meta.Recipients))
	for _, p := range c.Meta.Recipients {
		if _, ok := done[p]; !ok {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

func (s *Store) CountSentRecords(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&sentRecordRow{}).
		Where("campaign_id = ? AND status IN ?", id.String(), []string{domain.OutcomeSent, domain.OutcomeTest}).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count sent records: %w", err)
	}
	return n, nil
}

func (s *Store) GetCampaignStats(ctx context.Context, id uuid.UUID) (map[string]int, error) {
	rows, err := s.db.WithContext(ctx).Model(&sentRecordRow{}).
		Select("status, COUNT(*) as count").
		Where("campaign_id = ?", id.String()).
		Group("status").Rows()
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{
		domain.OutcomeSent:   0,
		domain.OutcomeFailed: 0,
		domain.OutcomeTest:   0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ── Sent records ─────────────────────────────────────────────────────────────

func (s *Store) RecordSend(ctx context.Context, rec domain.SentRecord) (domain.SendRecordResult, error) {
	row := sentRecordRow{
		CampaignID:   rec.CampaignID.String(),
		Phone:        rec.Phone,
		Status:       rec.Status,
		SentAt:       rec.SentAt,
		SessionName:  rec.SessionName,
		VariantIndex: rec.VariantIndex,
		ProviderID:   rec.ProviderID,
	}
	if row.SentAt.IsZero() {
		row.SentAt = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).Create(&row).Error
	if isDuplicateErr(err) {
		return domain.SendRecordResult{Recorded: false, Reason: "duplicate"}, nil
	}
	if err != nil {
		return domain.SendRecordResult{}, fmt.Errorf("insert sent record: %w", err)
	}

	s.primeCooldownCache(ctx, rec.Phone)
	return domain.SendRecordResult{Recorded: true, ID: row.ID}, nil
}

func (s *Store) WasAlreadySent(ctx context.Context, campaignID *uuid.UUID, phone string, within time.Duration) (bool, error) {
	q := s.db.WithContext(ctx).Model(&sentRecordRow{}).
		Where("phone = ? AND status IN ?", phone, []string{domain.OutcomeSent, domain.OutcomeTest})

	if campaignID != nil {
		q = q.Where("campaign_id = ?", campaignID.String())
	} else if s.cacheHit(ctx, phone) {
		return true, nil
	}
	if within > 0 {
		q = q.Where("sent_at > ?", time.Now().UTC().Add(-within))
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("lookup sent record: %w", err)
	}
	if n > 0 && campaignID == nil {
		s.primeCooldownCache(ctx, phone)
	}
	return n > 0, nil
}

// ── Blacklist ────────────────────────────────────────────────────────────────

func (s *Store) IsBlacklisted(ctx context.Context, phone string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&blacklistRow{}).
		Where("phone = ? AND active", phone).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("lookup blacklist: %w", err)
	}
	return n > 0, nil
}

func (s *Store) AddToBlacklist(ctx context.Context, entry domain.BlacklistEntry) error {
	var campaignID *string
	if entry.CampaignID != nil {
		id := entry.CampaignID.String()
		campaignID = &id
	}

	row := blacklistRow{
		Phone:      entry.Phone,
		Reason:     entry.Reason,
		CampaignID: campaignID,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if isDuplicateErr(err) {
		// Entry already exists for this phone; reactivate it.
		return s.db.WithContext(ctx).Model(&blacklistRow{}).
			Where("phone = ?", entry.Phone).
			Updates(map[string]any{"active": true, "reason": entry.Reason}).Error
	}
	if err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

func (s *Store) DeactivateBlacklistEntry(ctx context.Context, phone string) error {
	res := s.db.WithContext(ctx).Model(&blacklistRow{}).
		Where("phone = ?", phone).
		Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate blacklist entry: %w", res.Error)
	}
	return nil
}

// ── Cache helpers ────────────────────────────────────────────────────────────

func (s *Store) cacheHit(ctx context.Context, phone string) bool {
	if s.cache == nil {
		return false
	}
	_, ok := s.cache.Get(ctx, cooldownKeyPrefix+phone)
	return ok
}

func (s *Store) primeCooldownCache(ctx context.Context, phone string) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, cooldownKeyPrefix+phone, "1", s.cacheTTL); err != nil {
		s.log.Warn("cooldown cache prime failed", "phone", phone, "err", err)
	}
}

// isDuplicateErr recognizes a unique-constraint violation across the drivers
// we run on (gorm translation on postgres, raw message on sqlite).
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

var _ ports.DeliveryStateStore = (*Store)(nil)
