// Package memory holds in-memory repositories with the same semantics as the
// MongoDB and PostgreSQL ones. Used by tests and by local runs without
// databases.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Preyoshi04/MockWise/internal/models"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

type InterviewRepo struct {
	mu   sync.Mutex
	docs map[string]models.InterviewResult

	// Err, when set, is returned by every write.
	Err error
}

func NewInterviewRepo() *InterviewRepo {
	return &InterviewRepo{docs: map[string]models.InterviewResult{}}
}

func (r *InterviewRepo) UpsertEvaluation(ctx context.Context, in *models.InterviewResult) (string, bool, error) {
	if r.Err != nil {
		return "", false, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := in.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	doc, exists := r.docs[in.ID]
	if exists && doc.Status == models.StatusAborted {
		return "", false, utils.ErrAborted
	}
	prevOwner := doc.UserID
	if !exists {
		doc = models.InterviewResult{ID: in.ID, CreatedAt: now, UserID: in.UserID}
	}
	doc.CallID = in.CallID
	if in.UserID != models.DefaultUserID {
		doc.UserID = in.UserID
	}
	doc.Role = in.Role
	doc.TechStack = in.TechStack
	doc.Level = in.Level
	doc.Score = in.Score
	doc.Feedback = in.Feedback
	doc.Status = in.Status
	doc.Source = in.Source
	doc.UpdatedAt = now
	r.docs[in.ID] = doc
	return prevOwner, !exists, nil
}

func (r *InterviewRepo) InsertIfAbsent(ctx context.Context, in *models.InterviewResult) (bool, error) {
	if r.Err != nil {
		return false, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[in.ID]; ok {
		return false, nil
	}
	doc := *in
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.UpdatedAt = doc.CreatedAt
	r.docs[in.ID] = doc
	return true, nil
}

func (r *InterviewRepo) MergeReport(ctx context.Context, rep models.CallReport, now time.Time) (bool, error) {
	if r.Err != nil {
		return false, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, exists := r.docs[rep.CallID]
	if exists && doc.Status == models.StatusAborted {
		return false, utils.ErrAborted
	}
	if !exists {
		userID := rep.UserID
		if userID == "" {
			userID = models.DefaultUserID
		}
		doc = models.InterviewResult{
			ID:        rep.CallID,
			CallID:    rep.CallID,
			UserID:    userID,
			Role:      models.DefaultRole,
			TechStack: models.DefaultTechStack,
			Level:     models.DefaultLevel,
			Feedback:  models.PendingFeedback,
			Status:    models.StatusPending,
			Source:    models.SourceCallReport,
			CreatedAt: now,
		}
	}
	if rep.Summary != "" {
		doc.Summary = rep.Summary
	}
	if rep.Transcript != "" {
		doc.Transcript = rep.Transcript
	}
	if rep.RecordingURL != "" {
		doc.RecordingURL = rep.RecordingURL
	}
	if rep.EndedReason != "" {
		doc.EndedReason = rep.EndedReason
	}
	if rep.DurationSeconds > 0 {
		doc.DurationSeconds = rep.DurationSeconds
	}
	doc.UpdatedAt = now
	r.docs[rep.CallID] = doc
	return !exists, nil
}

func (r *InterviewRepo) ApplyReview(ctx context.Context, in *models.InterviewResult) (bool, error) {
	if r.Err != nil {
		return false, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[in.ID]
	if !ok || doc.Status != models.StatusPending {
		return false, nil
	}
	doc.Role = in.Role
	doc.TechStack = in.TechStack
	doc.Level = in.Level
	doc.Score = in.Score
	doc.Feedback = in.Feedback
	doc.Status = models.StatusEvaluated
	doc.Source = in.Source
	doc.UpdatedAt = in.UpdatedAt
	r.docs[in.ID] = doc
	return true, nil
}

func (r *InterviewRepo) SetRecordingPath(ctx context.Context, id, path string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok || doc.Status == models.StatusAborted {
		return utils.ErrNotFound
	}
	doc.RecordingPath = path
	doc.UpdatedAt = time.Now().UTC()
	r.docs[id] = doc
	return nil
}

func (r *InterviewRepo) MarkAborted(ctx context.Context, id, userID string, now time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		if userID == "" {
			userID = models.DefaultUserID
		}
		doc = models.InterviewResult{ID: id, CallID: id, UserID: userID, CreatedAt: now}
	}
	doc.Status = models.StatusAborted
	doc.Source = models.SourceSessionAbort
	doc.UpdatedAt = now
	r.docs[id] = doc
	return nil
}

func (r *InterviewRepo) GetByID(ctx context.Context, id string) (*models.InterviewResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok || doc.Status == models.StatusAborted {
		return nil, utils.ErrNotFound
	}
	return &doc, nil
}

func (r *InterviewRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.InterviewResult, error) {
	return r.list(func(d models.InterviewResult) bool { return d.UserID == userID }, limit), nil
}

func (r *InterviewRepo) ListRecent(ctx context.Context, limit int64) ([]models.InterviewResult, error) {
	return r.list(func(models.InterviewResult) bool { return true }, limit), nil
}

// Len returns the number of stored results. Abort tombstones are not counted.
func (r *InterviewRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.docs {
		if d.Status != models.StatusAborted {
			n++
		}
	}
	return n
}

// Aborted reports whether id carries an abort tombstone.
func (r *InterviewRepo) Aborted(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	return ok && d.Status == models.StatusAborted
}

// Put stores doc as is, for seeding tests.
func (r *InterviewRepo) Put(doc models.InterviewResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
}

func (r *InterviewRepo) list(keep func(models.InterviewResult) bool, limit int64) []models.InterviewResult {
	if limit <= 0 {
		limit = 100
	}
	r.mu.Lock()
	out := make([]models.InterviewResult, 0, len(r.docs))
	for _, d := range r.docs {
		if d.Status != models.StatusAborted && keep(d) {
			out = append(out, d)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out
}
