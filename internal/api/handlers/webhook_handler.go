package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Preyoshi04/MockWise/internal/pubsub"
	"github.com/Preyoshi04/MockWise/internal/services"
	"github.com/Preyoshi04/MockWise/internal/utils"
	"github.com/Preyoshi04/MockWise/internal/vapi"
)

const (
	maxWebhookBody   = 2 << 20
	webhookSecretHdr = "X-Vapi-Secret"
	evaluationSaved  = "Interview evaluation saved."
)

// ReportQueue hands finished calls to the background report workers.
type ReportQueue interface {
	EnqueueReport(ctx context.Context, callID string) error
}

type WebhookHandler struct {
	interviews services.InterviewService
	audit      services.WebhookAuditService
	bus        pubsub.Bus
	reports    ReportQueue
	secret     string
	log        *logrus.Logger
}

// NewWebhookHandler wires the voice platform callback endpoint. audit, bus
// and reports may be nil.
func NewWebhookHandler(
	interviews services.InterviewService,
	audit services.WebhookAuditService,
	bus pubsub.Bus,
	reports ReportQueue,
	secret string,
	log *logrus.Logger,
) *WebhookHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WebhookHandler{
		interviews: interviews,
		audit:      audit,
		bus:        bus,
		reports:    reports,
		secret:     secret,
		log:        log,
	}
}

type toolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

type webhookSuccess struct {
	Success bool         `json:"success"`
	ID      string       `json:"id"`
	Results []toolResult `json:"results"`
}

func webhookFail(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	if h.secret != "" {
		got := c.GetHeader(webhookSecretHdr)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		webhookFail(c, "failed to read body")
		return
	}
	msg, err := vapi.ParseServerMessage(body)
	if err != nil {
		h.log.WithError(err).Warn("webhook: malformed body")
		webhookFail(c, err.Error())
		return
	}

	log := h.log.WithFields(logrus.Fields{
		"type":    msg.Type,
		"call_id": msg.CallID,
	})
	log.Debug("webhook received")

	if h.audit != nil {
		if err := h.audit.Record(ctx, msg.CallID, msg.Type, body); err != nil {
			log.WithError(err).Warn("webhook: audit write failed")
		}
	}

	switch {
	case msg.Type == vapi.TypeToolCalls:
		h.handleToolCalls(c, msg, log)
		return
	case msg.Type == vapi.TypeEndOfCallReport:
		h.publish(ctx, msg, log)
		if !h.handleReport(ctx, msg, log) {
			webhookFail(c, "failed to store call report")
			return
		}
	case msg.Type == vapi.TypeStatusUpdate,
		msg.Type == vapi.TypeSpeechUpdate,
		strings.HasPrefix(msg.Type, vapi.TypeTranscript):
		h.publish(ctx, msg, log)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) handleToolCalls(c *gin.Context, msg *vapi.ServerMessage, log *logrus.Entry) {
	tc, ok := msg.FirstToolCall(vapi.EvaluateInterviewFn)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	ev, err := tc.Evaluation(msg.CallID)
	if err != nil {
		log.WithError(err).Error("webhook: bad evaluate_interview arguments")
		webhookFail(c, err.Error())
		return
	}
	if ev.UserID == "" {
		ev.UserID = msg.CallUserID
	}

	id, err := h.interviews.RecordEvaluation(c.Request.Context(), ev)
	if errors.Is(err, utils.ErrAborted) {
		log.Info("webhook: evaluation for aborted session dropped")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err != nil {
		log.WithError(err).Error("webhook: evaluation not saved")
		webhookFail(c, utils.SafeMessage(err))
		return
	}

	log.WithFields(logrus.Fields{"user_id": ev.UserID, "score": ev.Score}).Info("evaluation saved")
	c.JSON(http.StatusOK, webhookSuccess{
		Success: true,
		ID:      id,
		Results: []toolResult{{ToolCallID: tc.ID, Result: evaluationSaved}},
	})
}

// publish forwards a live-call event to whichever session holds the call.
func (h *WebhookHandler) publish(ctx context.Context, msg *vapi.ServerMessage, log *logrus.Entry) {
	if h.bus == nil || msg.CallID == "" {
		return
	}
	ev, ok := msg.CallEvent()
	if !ok {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, pubsub.CallEventsTopic(msg.CallID), b); err != nil {
		log.WithError(err).Warn("webhook: publish call event failed")
	}
}

func (h *WebhookHandler) handleReport(ctx context.Context, msg *vapi.ServerMessage, log *logrus.Entry) bool {
	if msg.CallID == "" {
		log.Warn("webhook: end-of-call-report without call id")
		return true
	}
	err := h.interviews.ApplyReport(ctx, msg.CallReport())
	if errors.Is(err, utils.ErrAborted) {
		log.Info("webhook: report for aborted session dropped")
		return true
	}
	if err != nil {
		log.WithError(err).Error("webhook: call report not saved")
		return false
	}
	if h.reports != nil {
		if err := h.reports.EnqueueReport(ctx, msg.CallID); err != nil {
			log.WithError(err).Warn("webhook: report job not queued")
		}
	}
	return true
}
