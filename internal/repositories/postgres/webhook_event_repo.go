package postgres

import (
	"context"

	"github.com/Preyoshi04/MockWise/internal/models"
	"gorm.io/gorm"
)

type WebhookEventRepository interface {
	Insert(ctx context.Context, e *models.WebhookEvent) error
	ListRecent(ctx context.Context, callID string, limit int) ([]models.WebhookEvent, error)
}

type webhookEventRepo struct {
	db *gorm.DB
}

func NewWebhookEventRepo(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepo{db: db}
}

func (r *webhookEventRepo) Insert(ctx context.Context, e *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// ListRecent returns the newest events, optionally for a single call.
func (r *webhookEventRepo) ListRecent(ctx context.Context, callID string, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("received_at DESC").Limit(limit)
	if callID != "" {
		q = q.Where("call_id = ?", callID)
	}
	var rows []models.WebhookEvent
	err := q.Find(&rows).Error
	return rows, err
}
