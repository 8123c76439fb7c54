package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Preyoshi04/MockWise/internal/logger"
	"github.com/Preyoshi04/MockWise/internal/models"
	mongorepo "github.com/Preyoshi04/MockWise/internal/repositories/mongo"
	pgrepo "github.com/Preyoshi04/MockWise/internal/repositories/postgres"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

// InterviewService records interview outcomes. All writes are keyed by the
// voice platform call id, so a redelivered signal merges into the existing
// result instead of creating a second one.
type InterviewService interface {
	// RecordEvaluation upserts an authoritative evaluation and returns the
	// result key. A missing call id is rejected with ErrMissingIdempotencyKey.
	RecordEvaluation(ctx context.Context, ev models.Evaluation) (string, error)
	// RecordFallback writes a pending placeholder unless a result exists.
	RecordFallback(ctx context.Context, callID, userID string) (bool, error)
	// RecordAbort tombstones the call. Later writes for it fail with an
	// error wrapping utils.ErrAborted and reads no longer return it.
	RecordAbort(ctx context.Context, callID, userID string) error
	ApplyReport(ctx context.Context, rep models.CallReport) error
	// ApplyTranscriptReview evaluates a result that is still pending.
	ApplyTranscriptReview(ctx context.Context, ev models.Evaluation) (bool, error)
	AttachRecording(ctx context.Context, id, path string) error

	Get(ctx context.Context, id string) (*models.InterviewResult, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.InterviewResult, error)
	ListRecent(ctx context.Context, limit int) ([]models.InterviewResult, error)
}

type interviewService struct {
	interviews mongorepo.InterviewRepository
	users      pgrepo.UserRepository
	log        *logrus.Logger

	now func() time.Time
}

func NewInterviewService(interviews mongorepo.InterviewRepository, users pgrepo.UserRepository, log *logrus.Logger) InterviewService {
	if log == nil {
		log = logger.Discard()
	}
	return &interviewService{
		interviews: interviews,
		users:      users,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeEvaluation fills missing fields with defaults and clamps the score
// to 0..100. It never fails: a partial payload is better than a lost one.
func NormalizeEvaluation(ev models.Evaluation) models.Evaluation {
	ev.CallID = strings.TrimSpace(ev.CallID)
	ev.UserID = orDefault(ev.UserID, models.DefaultUserID)
	ev.Role = orDefault(ev.Role, models.DefaultRole)
	ev.TechStack = orDefault(ev.TechStack, models.DefaultTechStack)
	ev.Level = orDefault(ev.Level, models.DefaultLevel)
	ev.Feedback = orDefault(ev.Feedback, models.DefaultFeedback)
	ev.Score = ClampScore(ev.Score)
	return ev
}

func ClampScore(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func (s *interviewService) RecordEvaluation(ctx context.Context, ev models.Evaluation) (string, error) {
	const op = "InterviewService.RecordEvaluation"

	ev = NormalizeEvaluation(ev)
	if ev.CallID == "" {
		return "", utils.E(utils.CodeInternal, op, "No Call ID found. Cannot prevent duplicates.", utils.ErrMissingIdempotencyKey)
	}

	now := s.now()
	prevOwner, created, err := s.interviews.UpsertEvaluation(ctx, &models.InterviewResult{
		ID:        ev.CallID,
		CallID:    ev.CallID,
		UserID:    ev.UserID,
		Role:      ev.Role,
		TechStack: ev.TechStack,
		Level:     ev.Level,
		Score:     ev.Score,
		Feedback:  ev.Feedback,
		Status:    models.StatusEvaluated,
		Source:    models.SourceWebhook,
		UpdatedAt: now,
	})
	if errors.Is(err, utils.ErrAborted) {
		return "", utils.E(utils.CodeConflict, op, "interview session was aborted", err)
	}
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to save interview result", err)
	}
	// A report can create the result before the evaluation names its owner.
	if created || prevOwner == models.DefaultUserID {
		s.countInterview(ctx, ev.UserID)
	}
	return ev.CallID, nil
}

func (s *interviewService) RecordFallback(ctx context.Context, callID, userID string) (bool, error) {
	const op = "InterviewService.RecordFallback"

	callID = strings.TrimSpace(callID)
	if callID == "" {
		return false, utils.E(utils.CodeInvalidArgument, op, "call id is required", utils.ErrMissingIdempotencyKey)
	}
	userID = orDefault(userID, models.DefaultUserID)

	now := s.now()
	created, err := s.interviews.InsertIfAbsent(ctx, &models.InterviewResult{
		ID:        callID,
		CallID:    callID,
		UserID:    userID,
		Role:      models.DefaultRole,
		TechStack: models.DefaultTechStack,
		Level:     models.DefaultLevel,
		Score:     0,
		Feedback:  models.PendingFeedback,
		Status:    models.StatusPending,
		Source:    models.SourceClientFallback,
		CreatedAt: now,
	})
	if err != nil {
		return false, utils.E(utils.CodeUnavailable, op, "failed to save pending interview", err)
	}
	if created {
		s.countInterview(ctx, userID)
	}
	return created, nil
}

func (s *interviewService) RecordAbort(ctx context.Context, callID, userID string) error {
	const op = "InterviewService.RecordAbort"

	callID = strings.TrimSpace(callID)
	if callID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "call id is required", utils.ErrMissingIdempotencyKey)
	}
	if err := s.interviews.MarkAborted(ctx, callID, orDefault(userID, models.DefaultUserID), s.now()); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to mark interview aborted", err)
	}
	return nil
}

func (s *interviewService) ApplyReport(ctx context.Context, rep models.CallReport) error {
	const op = "InterviewService.ApplyReport"

	rep.CallID = strings.TrimSpace(rep.CallID)
	if rep.CallID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "call id is required", utils.ErrMissingIdempotencyKey)
	}
	if rep.DurationSeconds < 0 {
		rep.DurationSeconds = 0
	}

	created, err := s.interviews.MergeReport(ctx, rep, s.now())
	if errors.Is(err, utils.ErrAborted) {
		return utils.E(utils.CodeConflict, op, "interview session was aborted", err)
	}
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to merge call report", err)
	}
	if created {
		s.countInterview(ctx, rep.UserID)
	}
	return nil
}

func (s *interviewService) ApplyTranscriptReview(ctx context.Context, ev models.Evaluation) (bool, error) {
	const op = "InterviewService.ApplyTranscriptReview"

	if strings.TrimSpace(ev.CallID) == "" {
		return false, utils.E(utils.CodeInvalidArgument, op, "call id is required", utils.ErrMissingIdempotencyKey)
	}
	ev = NormalizeEvaluation(ev)

	applied, err := s.interviews.ApplyReview(ctx, &models.InterviewResult{
		ID:        ev.CallID,
		Role:      ev.Role,
		TechStack: ev.TechStack,
		Level:     ev.Level,
		Score:     ev.Score,
		Feedback:  ev.Feedback,
		Source:    models.SourceTranscriptReview,
		UpdatedAt: s.now(),
	})
	if err != nil {
		return false, utils.E(utils.CodeUnavailable, op, "failed to apply transcript review", err)
	}
	return applied, nil
}

func (s *interviewService) AttachRecording(ctx context.Context, id, path string) error {
	const op = "InterviewService.AttachRecording"

	if id == "" || path == "" {
		return utils.E(utils.CodeInvalidArgument, op, "id and path are required", nil)
	}
	if err := s.interviews.SetRecordingPath(ctx, id, path); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "interview not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to attach recording", err)
	}
	return nil
}

func (s *interviewService) Get(ctx context.Context, id string) (*models.InterviewResult, error) {
	const op = "InterviewService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview id is required", nil)
	}
	out, err := s.interviews.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "interview not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get interview", err)
	}
	return out, nil
}

func (s *interviewService) ListByUser(ctx context.Context, userID string, limit int) ([]models.InterviewResult, error) {
	const op = "InterviewService.ListByUser"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	rows, err := s.interviews.ListByUser(ctx, userID, int64(limit))
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list interviews", err)
	}
	return rows, nil
}

func (s *interviewService) ListRecent(ctx context.Context, limit int) ([]models.InterviewResult, error) {
	const op = "InterviewService.ListRecent"

	rows, err := s.interviews.ListRecent(ctx, int64(limit))
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list interviews", err)
	}
	return rows, nil
}

// countInterview bumps the owner's counter once per new result. The result is
// already durable at this point, so a failed counter update is not an error
// for the caller.
func (s *interviewService) countInterview(ctx context.Context, userID string) {
	if s.users == nil || userID == "" || userID == models.DefaultUserID {
		return
	}
	if err := s.users.IncrementInterviews(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("interview counter update failed")
	}
}
