package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent is the audit row kept for every voice platform callback.
type WebhookEvent struct {
	ID         string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CallID     string         `gorm:"column:call_id;type:text;index" json:"call_id"`
	Type       string         `gorm:"column:type;type:text;index" json:"type"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	ReceivedAt time.Time      `gorm:"column:received_at;type:timestamptz;index" json:"received_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
