package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Preyoshi04/MockWise/internal/models"
	"github.com/Preyoshi04/MockWise/internal/services"
	"github.com/Preyoshi04/MockWise/internal/storage"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

const (
	dashboardLimit   = 100
	recordingLinkTTL = 15 * time.Minute
)

// PageHandler serves the view models behind the dashboard pages.
type PageHandler struct {
	interviews services.InterviewService
	stats      services.StatsService
	users      services.UserService
	signer     storage.Signer
}

func NewPageHandler(interviews services.InterviewService, stats services.StatsService, users services.UserService) *PageHandler {
	return &PageHandler{interviews: interviews, stats: stats, users: users}
}

// WithRecordingSigner lets the analysis page link to archived recordings.
func (h *PageHandler) WithRecordingSigner(s storage.Signer) *PageHandler {
	h.signer = s
	return h
}

type analysisView struct {
	*models.InterviewResult
	RecordingLink string `json:"recordingLink,omitempty"`
}

func (h *PageHandler) Dashboard(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.interviews.ListByUser(c.Request.Context(), userID, dashboardLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interviews": rows})
}

func (h *PageHandler) Profile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.stats.Profile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type UpdateTechStacksRequest struct {
	TechStacks []string `json:"techStacks"`
}

func (h *PageHandler) UpdateTechStacks(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req UpdateTechStacksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "PageHandler.UpdateTechStacks", "invalid request body", err))
		return
	}
	u, err := h.users.SetTechStacks(c.Request.Context(), userID, req.TechStacks)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *PageHandler) Community(c *gin.Context) {
	stats, err := h.stats.Community(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Analysis returns one interview. Only its owner may read it.
func (h *PageHandler) Analysis(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	res, err := h.interviews.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if res.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, "PageHandler.Analysis", "forbidden", nil))
		return
	}

	view := analysisView{InterviewResult: res}
	if h.signer != nil && res.RecordingPath != "" {
		link, err := h.signer.SignedGetURL(c.Request.Context(), res.RecordingPath, recordingLinkTTL)
		if err != nil {
			_ = c.Error(err)
		} else {
			view.RecordingLink = link
		}
	}
	c.JSON(http.StatusOK, view)
}
