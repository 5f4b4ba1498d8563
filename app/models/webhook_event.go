package models

import "time"

// WebhookEvent stores one inbound Mindbody webhook delivery with
// deduplication metadata for idempotent processing.
type WebhookEvent struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	EventID        *string    `gorm:"type:varchar(191);uniqueIndex:ux_webhook_events_event_id" json:"event_id,omitempty"`
	EventType      string     `gorm:"type:varchar(100);not null;index:idx_webhook_events_type_processed,priority:1;index:idx_webhook_events_site_type,priority:2" json:"event_type"`
	SiteID         *string    `gorm:"type:varchar(50);index:idx_webhook_events_site_type,priority:1" json:"site_id,omitempty"`
	EventData      string     `gorm:"type:longtext;not null" json:"event_data"`
	Headers        *string    `gorm:"type:text" json:"headers,omitempty"`
	EventTimestamp *time.Time `gorm:"type:timestamp;default:null" json:"event_timestamp,omitempty"`
	Processed      bool       `gorm:"default:false;index:idx_webhook_events_type_processed,priority:2;index:idx_webhook_events_processed_created,priority:1" json:"processed"`
	ProcessedAt    *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	RetryCount     int        `gorm:"not null;default:0" json:"retry_count"`
	LastError      *string    `gorm:"type:text" json:"last_error,omitempty"`
	Signature      *string    `gorm:"type:varchar(100)" json:"signature,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index:idx_webhook_events_processed_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsRetryable reports whether the event is still eligible for automatic
// reprocessing under the given retry budget.
func (e *WebhookEvent) IsRetryable(maxRetries int) bool {
	return !e.Processed && e.RetryCount < maxRetries
}

// IsTerminallyFailed reports whether the event exhausted its retry budget.
// Distinguishes a dead event from one merely waiting for its next attempt.
func (e *WebhookEvent) IsTerminallyFailed(maxRetries int) bool {
	return !e.Processed && e.LastError != nil && e.RetryCount >= maxRetries
}
