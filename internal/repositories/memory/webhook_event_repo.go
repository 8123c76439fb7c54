package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Preyoshi04/MockWise/internal/models"
)

type WebhookEventRepo struct {
	mu     sync.Mutex
	events []models.WebhookEvent
}

func NewWebhookEventRepo() *WebhookEventRepo { return &WebhookEventRepo{} }

func (r *WebhookEventRepo) Insert(ctx context.Context, e *models.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	r.events = append(r.events, *e)
	return nil
}

func (r *WebhookEventRepo) ListRecent(ctx context.Context, callID string, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	out := make([]models.WebhookEvent, 0, len(r.events))
	for _, e := range r.events {
		if callID == "" || e.CallID == callID {
			out = append(out, e)
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
