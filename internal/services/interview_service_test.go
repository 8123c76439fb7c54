package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Preyoshi04/MockWise/internal/logger"
	"github.com/Preyoshi04/MockWise/internal/models"
	"github.com/Preyoshi04/MockWise/internal/repositories/memory"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

func newInterviewFixture(t *testing.T) (*interviewService, *memory.InterviewRepo, *memory.UserRepo) {
	t.Helper()
	repo := memory.NewInterviewRepo()
	users := memory.NewUserRepo()
	if err := users.Create(context.Background(), &models.User{ID: "u1", Email: "u1@example.com", Name: "Ada"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	svc := NewInterviewService(repo, users, nil).(*interviewService)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, repo, users
}

func totalInterviews(t *testing.T, users *memory.UserRepo, id string) int {
	t.Helper()
	u, err := users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u.TotalInterviews
}

func TestRecordEvaluation_RedeliveryKeepsOneRecord(t *testing.T) {
	svc, repo, users := newInterviewFixture(t)
	ctx := context.Background()

	first := models.Evaluation{CallID: "abc123", UserID: "u1", Score: 82, Feedback: "Good"}
	for i := 0; i < 3; i++ {
		id, err := svc.RecordEvaluation(ctx, first)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if id != "abc123" {
			t.Fatalf("id = %q", id)
		}
	}
	got, _ := repo.GetByID(ctx, "abc123")
	if got.Score != 82 || got.Feedback != "Good" || got.UserID != "u1" {
		t.Fatalf("unexpected record: %+v", got)
	}
	created := got.CreatedAt

	second := first
	second.Score = 90
	if _, err := svc.RecordEvaluation(ctx, second); err != nil {
		t.Fatalf("record: %v", err)
	}

	if repo.Len() != 1 {
		t.Fatalf("expected one record, got %d", repo.Len())
	}
	got, _ = repo.GetByID(ctx, "abc123")
	if got.Score != 90 {
		t.Fatalf("redelivery must overwrite the score, got %d", got.Score)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at must not change on merge")
	}
	if n := totalInterviews(t, users, "u1"); n != 1 {
		t.Fatalf("counter incremented %d times", n)
	}
}

func TestRecordEvaluation_MissingCallID(t *testing.T) {
	svc, repo, _ := newInterviewFixture(t)

	_, err := svc.RecordEvaluation(context.Background(), models.Evaluation{CallID: "  ", UserID: "u1", Score: 50})
	if !errors.Is(err, utils.ErrMissingIdempotencyKey) {
		t.Fatalf("expected ErrMissingIdempotencyKey, got %v", err)
	}
	if utils.SafeMessage(err) != "No Call ID found. Cannot prevent duplicates." {
		t.Fatalf("message = %q", utils.SafeMessage(err))
	}
	if repo.Len() != 0 {
		t.Fatalf("nothing must be written")
	}
}

func TestRecordEvaluation_Defaults(t *testing.T) {
	svc, repo, _ := newInterviewFixture(t)
	ctx := context.Background()

	if _, err := svc.RecordEvaluation(ctx, models.Evaluation{CallID: "c1", Score: 140}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ := repo.GetByID(ctx, "c1")
	want := models.InterviewResult{
		UserID:    models.DefaultUserID,
		Role:      models.DefaultRole,
		TechStack: models.DefaultTechStack,
		Level:     models.DefaultLevel,
		Feedback:  models.DefaultFeedback,
		Score:     100,
		Status:    models.StatusEvaluated,
		Source:    models.SourceWebhook,
	}
	if got.UserID != want.UserID || got.Role != want.Role || got.TechStack != want.TechStack ||
		got.Level != want.Level || got.Feedback != want.Feedback || got.Score != want.Score ||
		got.Status != want.Status || got.Source != want.Source {
		t.Fatalf("defaults not applied:\n got %+v\nwant %+v", got, want)
	}
}

func TestRecordEvaluation_StoreFailure(t *testing.T) {
	svc, repo, _ := newInterviewFixture(t)
	repo.Err = errors.New("connection reset")

	_, err := svc.RecordEvaluation(context.Background(), models.Evaluation{CallID: "c1"})
	if !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
}

func TestRecordFallback_NeverOverwritesEvaluation(t *testing.T) {
	svc, repo, users := newInterviewFixture(t)
	ctx := context.Background()

	if _, err := svc.RecordEvaluation(ctx, models.Evaluation{CallID: "c1", UserID: "u1", Score: 77, Feedback: "Nice"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	created, err := svc.RecordFallback(ctx, "c1", "u1")
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if created {
		t.Fatalf("fallback must not create over an existing result")
	}
	got, _ := repo.GetByID(ctx, "c1")
	if got.Status != models.StatusEvaluated || got.Score != 77 {
		t.Fatalf("evaluation overwritten: %+v", got)
	}
	if n := totalInterviews(t, users, "u1"); n != 1 {
		t.Fatalf("counter = %d", n)
	}
}

func TestRecordFallback_ThenEvaluationWins(t *testing.T) {
	svc, repo, users := newInterviewFixture(t)
	ctx := context.Background()

	created, err := svc.RecordFallback(ctx, "c2", "u1")
	if err != nil || !created {
		t.Fatalf("fallback: created=%v err=%v", created, err)
	}
	got, _ := repo.GetByID(ctx, "c2")
	if got.Status != models.StatusPending || got.Source != models.SourceClientFallback || got.Score != 0 {
		t.Fatalf("unexpected placeholder: %+v", got)
	}

	if _, err := svc.RecordEvaluation(ctx, models.Evaluation{CallID: "c2", UserID: "u1", Score: 64, Feedback: "OK"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ = repo.GetByID(ctx, "c2")
	if got.Status != models.StatusEvaluated || got.Score != 64 {
		t.Fatalf("late evaluation must replace the placeholder: %+v", got)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected one record")
	}
	if n := totalInterviews(t, users, "u1"); n != 1 {
		t.Fatalf("counter = %d", n)
	}
}

func TestRecordFallback_RequiresCallID(t *testing.T) {
	svc, repo, _ := newInterviewFixture(t)
	if _, err := svc.RecordFallback(context.Background(), "", "u1"); !errors.Is(err, utils.ErrMissingIdempotencyKey) {
		t.Fatalf("expected ErrMissingIdempotencyKey, got %v", err)
	}
	if repo.Len() != 0 {
		t.Fatalf("nothing must be written")
	}
}

func TestApplyReport_CreatesPendingAndMerges(t *testing.T) {
	svc, repo, users := newInterviewFixture(t)
	ctx := context.Background()

	rep := models.CallReport{CallID: "c3", UserID: "u1", Summary: "Talked about Go.", Transcript: "AI: hi", DurationSeconds: 120}
	if err := svc.ApplyReport(ctx, rep); err != nil {
		t.Fatalf("report: %v", err)
	}
	got, _ := repo.GetByID(ctx, "c3")
	if got.Status != models.StatusPending || got.Summary != "Talked about Go." || got.DurationSeconds != 120 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// the verdict arriving afterwards keeps the report fields
	if _, err := svc.RecordEvaluation(ctx, models.Evaluation{CallID: "c3", UserID: "u1", Score: 70}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ = repo.GetByID(ctx, "c3")
	if got.Status != models.StatusEvaluated || got.Transcript != "AI: hi" {
		t.Fatalf("merge lost fields: %+v", got)
	}
	if n := totalInterviews(t, users, "u1"); n != 1 {
		t.Fatalf("counter = %d", n)
	}
}

func TestApplyTranscriptReview_OnlyWhilePending(t *testing.T) {
	svc, repo, _ := newInterviewFixture(t)
	ctx := context.Background()

	if _, err := svc.RecordFallback(ctx, "c4", "u1"); err != nil {
		t.Fatalf("fallback: %v", err)
	}
	applied, err := svc.ApplyTranscriptReview(ctx, models.Evaluation{CallID: "c4", Score: 58, Feedback: "Review"})
	if err != nil || !applied {
		t.Fatalf("review: applied=%v err=%v", applied, err)
	}
	got, _ := repo.GetByID(ctx, "c4")
	if got.Status != models.StatusEvaluated || got.Source != models.SourceTranscriptReview || got.Score != 58 {
		t.Fatalf("unexpected record: %+v", got)
	}

	applied, err = svc.ApplyTranscriptReview(ctx, models.Evaluation{CallID: "c4", Score: 10, Feedback: "Again"})
	if err != nil || applied {
		t.Fatalf("second review must be skipped: applied=%v err=%v", applied, err)
	}
}

func TestRecordAbort_RefusesLaterWrites(t *testing.T) {
	svc, repo, users := newInterviewFixture(t)
	ctx := context.Background()

	if err := svc.RecordAbort(ctx, "c5", "u1"); err != nil {
		t.Fatalf("abort: %v", err)
	}

	err := svc.ApplyReport(ctx, models.CallReport{CallID: "c5", UserID: "u1", Transcript: "AI: hi"})
	if !errors.Is(err, utils.ErrAborted) || !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("report after abort: %v", err)
	}
	_, err = svc.RecordEvaluation(ctx, models.Evaluation{CallID: "c5", UserID: "u1", Score: 90})
	if !errors.Is(err, utils.ErrAborted) {
		t.Fatalf("evaluation after abort: %v", err)
	}
	applied, err := svc.ApplyTranscriptReview(ctx, models.Evaluation{CallID: "c5", Score: 40})
	if err != nil || applied {
		t.Fatalf("review after abort: applied=%v err=%v", applied, err)
	}
	if created, err := svc.RecordFallback(ctx, "c5", "u1"); err != nil || created {
		t.Fatalf("fallback after abort: created=%v err=%v", created, err)
	}
	if err := svc.AttachRecording(ctx, "c5", "recordings/c5.wav"); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("attach after abort: %v", err)
	}

	if _, err := svc.Get(ctx, "c5"); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("aborted call must not be readable: %v", err)
	}
	rows, _ := svc.ListByUser(ctx, "u1", 10)
	recent, _ := svc.ListRecent(ctx, 10)
	if len(rows) != 0 || len(recent) != 0 || repo.Len() != 0 {
		t.Fatalf("aborted call listed: byUser=%d recent=%d", len(rows), len(recent))
	}
	if n := totalInterviews(t, users, "u1"); n != 0 {
		t.Fatalf("counter = %d", n)
	}
}

func TestRecordAbort_HidesExistingResult(t *testing.T) {
	svc, repo, _ := newInterviewFixture(t)
	ctx := context.Background()

	if err := svc.ApplyReport(ctx, models.CallReport{CallID: "c6", UserID: "u1"}); err != nil {
		t.Fatalf("report: %v", err)
	}
	if err := svc.RecordAbort(ctx, "c6", "u1"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if !repo.Aborted("c6") || repo.Len() != 0 {
		t.Fatalf("pending result must be tombstoned")
	}
	if err := svc.RecordAbort(ctx, " ", "u1"); !errors.Is(err, utils.ErrMissingIdempotencyKey) {
		t.Fatalf("expected ErrMissingIdempotencyKey, got %v", err)
	}
}

func TestRecordEvaluation_CountsOwnerOfReportCreatedResult(t *testing.T) {
	svc, repo, users := newInterviewFixture(t)
	ctx := context.Background()

	// the report carries no user, so the result starts out unowned
	if err := svc.ApplyReport(ctx, models.CallReport{CallID: "c7", Transcript: "AI: hi"}); err != nil {
		t.Fatalf("report: %v", err)
	}
	if n := totalInterviews(t, users, "u1"); n != 0 {
		t.Fatalf("counter = %d", n)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.RecordEvaluation(ctx, models.Evaluation{CallID: "c7", UserID: "u1", Score: 66}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got, _ := repo.GetByID(ctx, "c7")
	if got.UserID != "u1" {
		t.Fatalf("owner = %q", got.UserID)
	}
	if n := totalInterviews(t, users, "u1"); n != 1 {
		t.Fatalf("counter = %d, want 1", n)
	}

	// an unattributed redelivery keeps the known owner
	if _, err := svc.RecordEvaluation(ctx, models.Evaluation{CallID: "c7", Score: 70}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ = repo.GetByID(ctx, "c7")
	if got.UserID != "u1" || got.Score != 70 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestCountInterview_FailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	svc := NewInterviewService(memory.NewInterviewRepo(), memory.NewUserRepo(), logger.NewWithOutput(&buf, "info", "json"))

	// ghost is not a known user, so the counter update fails
	if _, err := svc.RecordEvaluation(context.Background(), models.Evaluation{CallID: "c8", UserID: "ghost", Score: 50}); err != nil {
		t.Fatalf("counter failure must not fail the write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "interview counter update failed") || !strings.Contains(out, `"level":"warning"`) {
		t.Fatalf("expected a warning, got %q", out)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newInterviewFixture(t)
	_, err := svc.Get(context.Background(), "nope")
	if !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestClampScore(t *testing.T) {
	for in, want := range map[int]int{-5: 0, 0: 0, 55: 55, 100: 100, 250: 100} {
		if got := ClampScore(in); got != want {
			t.Fatalf("ClampScore(%d) = %d, want %d", in, got, want)
		}
	}
}
