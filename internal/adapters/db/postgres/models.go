package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"whatsapp-broadcast/internal/domain"

	"github.com/google/uuid"
)

// campaignMeta is the structured metadata JSON column: the validated
// recipient list and batching configuration needed for resumability.
type campaignMeta struct {
	Recipients []string           `json:"recipients"`
	Batch      domain.BatchConfig `json:"batch"`
	Test       bool               `json:"test"`
}

func (m campaignMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *campaignMeta) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = campaignMeta{}
		return nil
	default:
		return fmt.Errorf("unsupported campaign meta type %T", src)
	}
}

// IDs are persisted as canonical uuid strings so the same row types work on
// postgres and on the sqlite database the tests run against.
type campaignRow struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Name        string `gorm:"not null"`
	Template    string `gorm:"not null"`
	Status      string `gorm:"not null;index"`
	SessionName string `gorm:"index"`
	Recipients  int
	Sent        int
	Failed      int
	Skipped     int
	BatchCursor int
	Meta        campaignMeta `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (campaignRow) TableName() string { return "campaigns" }

// sentRecordRow rows are insert-only. The composite unique index is the
// durable no-double-send invariant; it must hold even for concurrent or
// retried writers, which application memory cannot guarantee.
type sentRecordRow struct {
	ID           uint      `gorm:"primaryKey"`
	CampaignID   string    `gorm:"type:uuid;not null;uniqueIndex:ux_sent_campaign_phone,priority:1"`
	Phone        string    `gorm:"not null;uniqueIndex:ux_sent_campaign_phone,priority:2;index"`
	Status       string    `gorm:"not null"`
	SentAt       time.Time `gorm:"not null;index"`
	SessionName  string
	VariantIndex int
	ProviderID   string
}

func (sentRecordRow) TableName() string { return "sent_records" }

type blacklistRow struct {
	ID         uint   `gorm:"primaryKey"`
	Phone      string `gorm:"not null;uniqueIndex"`
	Reason     string
	CampaignID *string `gorm:"type:uuid"`
	Active     bool    `gorm:"not null;index"`
	CreatedAt  time.Time
}

func (blacklistRow) TableName() string { return "blacklist" }

func toCampaignRow(c domain.Campaign) campaignRow {
	return campaignRow{
		ID:          c.ID.String(),
		Name:        c.Name,
		Template:    c.Template,
		Status:      string(c.Status),
		SessionName: c.SessionName,
		Recipients:  c.Recipients,
		Sent:        c.Sent,
		Failed:      c.Failed,
		Skipped:     c.Skipped,
		BatchCursor: c.Meta.BatchCursor,
		Meta: campaignMeta{
			Recipients: c.Meta.Recipients,
			Batch:      c.Meta.Batch,
			Test:       c.Meta.Test,
		},
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		CompletedAt: c.CompletedAt,
	}
}

func fromCampaignRow(r campaignRow) domain.Campaign {
	id, _ := uuid.Parse(r.ID)
	return domain.Campaign{
		ID:          id,
		Name:        r.Name,
		Template:    r.Template,
		Status:      domain.Status(r.Status),
		SessionName: r.SessionName,
		Recipients:  r.Recipients,
		Sent:        r.Sent,
		Failed:      r.Failed,
		Skipped:     r.Skipped,
		Meta: domain.CampaignMeta{
			Recipients:  r.Meta.Recipients,
			Batch:       r.Meta.Batch,
			BatchCursor: r.BatchCursor,
			Test:        r.Meta.Test,
		},
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}
}
