package webhook

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fitstack/mindbridge/app/models"
)

// StatusCounts summarizes the event table for the stats surface.
type StatusCounts struct {
	Pending   int64 `json:"pending"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Terminal  int64 `json:"terminal"`
}

// Repository provides the durable, deduplicated record of inbound events.
type Repository interface {
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	GetByID(id uint) (*models.WebhookEvent, error)
	MarkProcessed(id uint) error
	MarkFailed(id uint, errorMsg string) (int, error)
	Retryable(maxRetries, limit int) ([]models.WebhookEvent, error)
	List(status string, maxRetries, limit int) ([]models.WebhookEvent, error)
	CountsByStatus(maxRetries int) (*StatusCounts, error)
	CleanupProcessed(cutoff time.Time) (int64, error)
	CleanupFailed(cutoff time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a webhook event repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// CreateIfNotExists inserts the event unless a row with the same external
// event id already exists. The unique index makes this safe under
// concurrent deliveries of the same id; the loser observes created=false
// and gets the winner's row back. Events without an external id are always
// inserted (nothing to deduplicate on).
func (r *gormRepository) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if event.EventID == nil || *event.EventID == "" {
		if err := r.db.Create(event).Error; err != nil {
			return false, nil, err
		}
		return true, event, nil
	}

	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("event_id = ?", *event.EventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetByID(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessed flags the event done and clears any recorded error.
func (r *gormRepository) MarkProcessed(id uint) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed":    true,
		"processed_at": &now,
		"last_error":   nil,
	}).Error
}

// MarkFailed records the error and increments retry_count atomically,
// returning the new count.
func (r *gormRepository) MarkFailed(id uint, errorMsg string) (int, error) {
	err := r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_error":  errorMsg,
		"retry_count": gorm.Expr("retry_count + 1"),
	}).Error
	if err != nil {
		return 0, err
	}

	var event models.WebhookEvent
	if err := r.db.Select("retry_count").First(&event, id).Error; err != nil {
		return 0, err
	}
	return event.RetryCount, nil
}

// Retryable returns unprocessed events still under the retry budget,
// oldest first.
func (r *gormRepository) Retryable(maxRetries, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	q := r.db.
		Where("processed = ? AND retry_count < ?", false, maxRetries).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

// List returns recent events filtered by status: "pending", "processed",
// "failed", "terminal", or "" for all.
func (r *gormRepository) List(status string, maxRetries, limit int) ([]models.WebhookEvent, error) {
	q := r.db.Order("created_at DESC")
	switch status {
	case "pending":
		q = q.Where("processed = ? AND retry_count < ?", false, maxRetries)
	case "processed":
		q = q.Where("processed = ?", true)
	case "failed":
		q = q.Where("processed = ? AND last_error IS NOT NULL", false)
	case "terminal":
		q = q.Where("processed = ? AND last_error IS NOT NULL AND retry_count >= ?", false, maxRetries)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var events []models.WebhookEvent
	err := q.Find(&events).Error
	return events, err
}

func (r *gormRepository) CountsByStatus(maxRetries int) (*StatusCounts, error) {
	var counts StatusCounts
	model := func() *gorm.DB { return r.db.Model(&models.WebhookEvent{}) }

	if err := model().Where("processed = ? AND retry_count < ?", false, maxRetries).Count(&counts.Pending).Error; err != nil {
		return nil, err
	}
	if err := model().Where("processed = ?", true).Count(&counts.Processed).Error; err != nil {
		return nil, err
	}
	if err := model().Where("processed = ? AND last_error IS NOT NULL", false).Count(&counts.Failed).Error; err != nil {
		return nil, err
	}
	if err := model().Where("processed = ? AND last_error IS NOT NULL AND retry_count >= ?", false, maxRetries).Count(&counts.Terminal).Error; err != nil {
		return nil, err
	}
	return &counts, nil
}

// CleanupProcessed deletes processed events whose processed_at is older
// than the cutoff.
func (r *gormRepository) CleanupProcessed(cutoff time.Time) (int64, error) {
	tx := r.db.
		Where("processed = ? AND processed_at IS NOT NULL AND processed_at < ?", true, cutoff).
		Delete(&models.WebhookEvent{})
	return tx.RowsAffected, tx.Error
}

// CleanupFailed deletes failed events created before the cutoff. Failed
// rows have their own, typically longer, retention window.
func (r *gormRepository) CleanupFailed(cutoff time.Time) (int64, error) {
	tx := r.db.
		Where("processed = ? AND last_error IS NOT NULL AND created_at < ?", false, cutoff).
		Delete(&models.WebhookEvent{})
	return tx.RowsAffected, tx.Error
}
