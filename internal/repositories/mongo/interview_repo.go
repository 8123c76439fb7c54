package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/Preyoshi04/MockWise/internal/models"
	"github.com/Preyoshi04/MockWise/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InterviewRepository stores interview results keyed by call id. Every write
// is an upsert on _id; nothing here inserts blindly.
//
// A document with status Aborted is a tombstone. Reads never return it, and
// writes that would revive it fail with utils.ErrAborted.
type InterviewRepository interface {
	// UpsertEvaluation merges the evaluation fields of r into the document
	// r.ID. created_at is only written when the document is new. prevOwner is
	// the user_id the document had before the write; empty when created.
	// A models.DefaultUserID owner never replaces a known one.
	UpsertEvaluation(ctx context.Context, r *models.InterviewResult) (prevOwner string, created bool, err error)
	// InsertIfAbsent writes r only when no document with r.ID exists.
	InsertIfAbsent(ctx context.Context, r *models.InterviewResult) (created bool, err error)
	// MergeReport merges end-of-call report fields, creating a pending
	// document when none exists.
	MergeReport(ctx context.Context, rep models.CallReport, now time.Time) (created bool, err error)
	// ApplyReview sets evaluation fields only while the document is pending.
	ApplyReview(ctx context.Context, r *models.InterviewResult) (applied bool, err error)
	SetRecordingPath(ctx context.Context, id, path string) error
	// MarkAborted turns the document for id into a tombstone, creating it if
	// needed. Existing result fields are left in place but no longer readable.
	MarkAborted(ctx context.Context, id, userID string, now time.Time) error

	GetByID(ctx context.Context, id string) (*models.InterviewResult, error)
	ListByUser(ctx context.Context, userID string, limit int64) ([]models.InterviewResult, error)
	ListRecent(ctx context.Context, limit int64) ([]models.InterviewResult, error)
}

type interviewRepo struct {
	col *mongo.Collection
}

func NewInterviewRepo(db *mongo.Database) InterviewRepository {
	return &interviewRepo{col: db.Collection("interviews")}
}

// liveFilter matches id unless it has been tombstoned.
func liveFilter(id string) bson.M {
	return bson.M{"_id": id, "status": bson.M{"$ne": models.StatusAborted}}
}

var notAborted = bson.M{"status": bson.M{"$ne": models.StatusAborted}}

// upsert runs an upserting UpdateOne on liveFilter(id). Two concurrent upserts
// on the same _id can race to insert; the loser sees a duplicate key error and
// is retried once, at which point it matches the winner's document. A second
// duplicate key error means the document exists but is a tombstone.
func (r *interviewRepo) upsert(ctx context.Context, id string, update bson.M) (*mongo.UpdateResult, error) {
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, liveFilter(id), update, opts)
	if mongo.IsDuplicateKeyError(err) {
		res, err = r.col.UpdateOne(ctx, liveFilter(id), update, opts)
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil, utils.ErrAborted
	}
	return res, err
}

func (r *interviewRepo) UpsertEvaluation(ctx context.Context, in *models.InterviewResult) (string, bool, error) {
	now := in.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	set := bson.M{
		"call_id":    in.CallID,
		"role":       in.Role,
		"tech_stack": in.TechStack,
		"level":      in.Level,
		"score":      in.Score,
		"feedback":   in.Feedback,
		"status":     in.Status,
		"source":     in.Source,
		"updated_at": now,
	}
	onInsert := bson.M{"created_at": now}
	if in.UserID == models.DefaultUserID {
		onInsert["user_id"] = in.UserID
	} else {
		set["user_id"] = in.UserID
	}
	update := bson.M{"$set": set, "$setOnInsert": onInsert}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"user_id": 1})

	var prev struct {
		UserID string `bson:"user_id"`
	}
	err := r.col.FindOneAndUpdate(ctx, liveFilter(in.ID), update, opts).Decode(&prev)
	if mongo.IsDuplicateKeyError(err) {
		err = r.col.FindOneAndUpdate(ctx, liveFilter(in.ID), update, opts).Decode(&prev)
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return "", true, nil
	case mongo.IsDuplicateKeyError(err):
		return "", false, utils.ErrAborted
	case err != nil:
		return "", false, err
	}
	return prev.UserID, false, nil
}

func (r *interviewRepo) InsertIfAbsent(ctx context.Context, in *models.InterviewResult) (bool, error) {
	now := in.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": in.ID},
		bson.M{"$setOnInsert": bson.M{
			"call_id":    in.CallID,
			"user_id":    in.UserID,
			"role":       in.Role,
			"tech_stack": in.TechStack,
			"level":      in.Level,
			"score":      in.Score,
			"feedback":   in.Feedback,
			"status":     in.Status,
			"source":     in.Source,
			"created_at": now,
			"updated_at": now,
		}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// lost the insert race; the winner's document stands
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

func (r *interviewRepo) MergeReport(ctx context.Context, rep models.CallReport, now time.Time) (bool, error) {
	set := bson.M{"updated_at": now}
	if rep.Summary != "" {
		set["summary"] = rep.Summary
	}
	if rep.Transcript != "" {
		set["transcript"] = rep.Transcript
	}
	if rep.RecordingURL != "" {
		set["recording_url"] = rep.RecordingURL
	}
	if rep.EndedReason != "" {
		set["ended_reason"] = rep.EndedReason
	}
	if rep.DurationSeconds > 0 {
		set["duration_seconds"] = rep.DurationSeconds
	}

	userID := rep.UserID
	if userID == "" {
		userID = models.DefaultUserID
	}

	res, err := r.upsert(ctx, rep.CallID,
		bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"call_id":    rep.CallID,
				"user_id":    userID,
				"role":       models.DefaultRole,
				"tech_stack": models.DefaultTechStack,
				"level":      models.DefaultLevel,
				"score":      0,
				"feedback":   models.PendingFeedback,
				"status":     models.StatusPending,
				"source":     models.SourceCallReport,
				"created_at": now,
			},
		},
	)
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

func (r *interviewRepo) ApplyReview(ctx context.Context, in *models.InterviewResult) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": in.ID, "status": models.StatusPending},
		bson.M{"$set": bson.M{
			"role":       in.Role,
			"tech_stack": in.TechStack,
			"level":      in.Level,
			"score":      in.Score,
			"feedback":   in.Feedback,
			"status":     models.StatusEvaluated,
			"source":     in.Source,
			"updated_at": in.UpdatedAt,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *interviewRepo) SetRecordingPath(ctx context.Context, id, path string) error {
	res, err := r.col.UpdateOne(ctx,
		liveFilter(id),
		bson.M{"$set": bson.M{
			"recording_path": path,
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *interviewRepo) MarkAborted(ctx context.Context, id, userID string, now time.Time) error {
	if userID == "" {
		userID = models.DefaultUserID
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{
				"status":     models.StatusAborted,
				"source":     models.SourceSessionAbort,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"call_id":    id,
				"user_id":    userID,
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		_, err = r.col.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$set": bson.M{
				"status":     models.StatusAborted,
				"source":     models.SourceSessionAbort,
				"updated_at": now,
			}},
		)
	}
	return err
}

func (r *interviewRepo) GetByID(ctx context.Context, id string) (*models.InterviewResult, error) {
	var out models.InterviewResult
	err := r.col.FindOne(ctx, liveFilter(id)).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *interviewRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.InterviewResult, error) {
	return r.find(ctx, bson.M{"user_id": userID, "status": notAborted["status"]}, limit)
}

func (r *interviewRepo) ListRecent(ctx context.Context, limit int64) ([]models.InterviewResult, error) {
	return r.find(ctx, notAborted, limit)
}

func (r *interviewRepo) find(ctx context.Context, filter bson.M, limit int64) ([]models.InterviewResult, error) {
	if limit <= 0 {
		limit = 100
	}

	cur, err := r.col.Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.InterviewResult, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
