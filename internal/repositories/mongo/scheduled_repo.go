package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ScheduledSessionRepository interface {
	Create(ctx context.Context, s *models.ScheduledSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.ScheduledSession, error)
	IncrementAttempts(ctx context.Context, sessionID string) (*models.ScheduledSession, error)
	Activate(ctx context.Context, sessionID string, at time.Time) error
	Cancel(ctx context.Context, sessionID string) error
	Expire(ctx context.Context, sessionID string, at time.Time) error
	// ExpireEndedBefore marks open records whose end_time is before cutoff.
	ExpireEndedBefore(ctx context.Context, cutoff, at time.Time) (int64, error)
	// DeleteExpiredBefore removes expired records whose expired_at is before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type scheduledRepo struct {
	col *mongo.Collection
}

func NewScheduledSessionRepo(db *mongo.Database) ScheduledSessionRepository {
	return &scheduledRepo{col: db.Collection("scheduled_sessions")}
}

func (r *scheduledRepo) Create(ctx context.Context, s *models.ScheduledSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrDuplicate
	}
	return err
}

func (r *scheduledRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.ScheduledSession, error) {
	var s models.ScheduledSession
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduledRepo) IncrementAttempts(ctx context.Context, sessionID string) (*models.ScheduledSession, error) {
	var s models.ScheduledSession
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{
			"session_id": sessionID,
			"$expr":      bson.M{"$lt": bson.A{"$access_attempts", "$max_access_attempts"}},
		},
		bson.M{"$inc": bson.M{"access_attempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, gerr := r.GetBySessionID(ctx, sessionID); gerr != nil {
			return nil, gerr
		}
		return nil, utils.ErrLimitReached
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduledRepo) setStatus(ctx context.Context, sessionID string, from []models.SessionStatus, set bson.M) error {
	in := bson.A{}
	for _, s := range from {
		in = append(in, s)
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": bson.M{"$in": in}},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrStateMismatch
	}
	return nil
}

func (r *scheduledRepo) Activate(ctx context.Context, sessionID string, at time.Time) error {
	return r.setStatus(ctx, sessionID, []models.SessionStatus{models.StatusScheduled},
		bson.M{"status": models.StatusActive, "activated_at": at.UTC()})
}

func (r *scheduledRepo) Cancel(ctx context.Context, sessionID string) error {
	return r.setStatus(ctx, sessionID, models.OpenStatuses, bson.M{"status": models.StatusCancelled})
}

func (r *scheduledRepo) Expire(ctx context.Context, sessionID string, at time.Time) error {
	return r.setStatus(ctx, sessionID, models.OpenStatuses,
		bson.M{"status": models.StatusExpired, "expired_at": at.UTC()})
}

func (r *scheduledRepo) ExpireEndedBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{
			"status":   bson.M{"$in": openStatuses()},
			"end_time": bson.M{"$lt": cutoff.UTC()},
		},
		bson.M{"$set": bson.M{"status": models.StatusExpired, "expired_at": at.UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *scheduledRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{
		"status":     models.StatusExpired,
		"expired_at": bson.M{"$lt": cutoff.UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
