package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Preyoshi04/MockWise/internal/models"
	pgrepo "github.com/Preyoshi04/MockWise/internal/repositories/postgres"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

const maxAuditList = 200

// WebhookAuditService keeps the raw callback log used to debug missing or
// duplicated results.
type WebhookAuditService interface {
	Record(ctx context.Context, callID, msgType string, payload []byte) error
	List(ctx context.Context, callID string, limit int) ([]models.WebhookEvent, error)
}

type webhookAuditService struct {
	events pgrepo.WebhookEventRepository
}

func NewWebhookAuditService(events pgrepo.WebhookEventRepository) WebhookAuditService {
	return &webhookAuditService{events: events}
}

func (s *webhookAuditService) Record(ctx context.Context, callID, msgType string, payload []byte) error {
	const op = "WebhookAuditService.Record"

	if !json.Valid(payload) {
		b, _ := json.Marshal(map[string]string{"raw": string(payload)})
		payload = b
	}
	e := &models.WebhookEvent{
		ID:         uuid.NewString(),
		CallID:     callID,
		Type:       msgType,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.events.Insert(ctx, e); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to store webhook event", err)
	}
	return nil
}

func (s *webhookAuditService) List(ctx context.Context, callID string, limit int) ([]models.WebhookEvent, error) {
	const op = "WebhookAuditService.List"

	if limit <= 0 || limit > maxAuditList {
		limit = 50
	}
	rows, err := s.events.ListRecent(ctx, callID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list webhook events", err)
	}
	return rows, nil
}
