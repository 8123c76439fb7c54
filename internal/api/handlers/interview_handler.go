package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Preyoshi04/MockWise/internal/services"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

type InterviewHandler struct {
	svc   services.InterviewService
	audit services.WebhookAuditService
}

func NewInterviewHandler(svc services.InterviewService, audit services.WebhookAuditService) *InterviewHandler {
	return &InterviewHandler{svc: svc, audit: audit}
}

func (h *InterviewHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.ListByUser(c.Request.Context(), userID, queryLimit(c, 50, 500))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *InterviewHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if res.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "InterviewHandler.Get", "forbidden", nil))
		return
	}
	c.JSON(http.StatusOK, res)
}

// WebhookEvents lists raw callbacks for support. Admin only.
func (h *InterviewHandler) WebhookEvents(c *gin.Context) {
	rows, err := h.audit.List(c.Request.Context(), c.Query("call_id"), queryLimit(c, 50, 200))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
