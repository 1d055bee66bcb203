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

// SessionRepository persists interview sessions. Every mutation is a single
// document update; guarded transitions return utils.ErrStateMismatch when the
// document is no longer in the expected state.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	LatestOpenByCandidate(ctx context.Context, candidateID string) (*models.Session, error)
	FindOpen(ctx context.Context, candidateID, jobID string) (*models.Session, error)

	IncrementAttempts(ctx context.Context, sessionID string, at time.Time) (*models.Session, error)
	ResetAttempts(ctx context.Context, sessionID string) error

	Activate(ctx context.Context, sessionID string, joinedAt, accessEnd time.Time) error
	Complete(ctx context.Context, sessionID string, leftAt time.Time, minutesSpent int) error
	Cancel(ctx context.Context, sessionID string, at time.Time) error
	Expire(ctx context.Context, sessionID string, at time.Time) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)

	SetPreparedIfAbsent(ctx context.Context, sessionID string, pc *models.PreparedContent) error
	InitConversation(ctx context.Context, sessionID string, msgs []models.Message) error
	AppendMessages(ctx context.Context, sessionID string, msgs ...models.Message) (*models.Session, error)
	StartCoding(ctx context.Context, sessionID string, rec models.CodingTestRecord, announce models.Message) error
	FinishCoding(ctx context.Context, sessionID string, sub models.CodingSubmission, msg models.Message) error
}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection("sessions")}
}

func openStatuses() bson.A {
	out := bson.A{}
	for _, s := range models.OpenStatuses {
		out = append(out, s)
	}
	return out
}

func (r *sessionRepo) Create(ctx context.Context, s *models.Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	if s.Conversation.Messages == nil {
		s.Conversation.Messages = []models.Message{}
	}
	if s.Conversation.CodingTestRecords == nil {
		s.Conversation.CodingTestRecords = []models.CodingTestRecord{}
	}
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrDuplicate
	}
	return err
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) LatestOpenByCandidate(ctx context.Context, candidateID string) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOne(ctx,
		bson.M{"candidate_id": candidateID, "status": bson.M{"$in": openStatuses()}},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) FindOpen(ctx context.Context, candidateID, jobID string) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOne(ctx, bson.M{
		"candidate_id": candidateID,
		"job_id":       jobID,
		"status":       bson.M{"$in": openStatuses()},
	}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// IncrementAttempts bumps login_attempts only while it is below the ceiling,
// so concurrent requests can never push a session past its lock without
// observing utils.ErrLimitReached.
func (r *sessionRepo) IncrementAttempts(ctx context.Context, sessionID string, at time.Time) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{
			"session_id": sessionID,
			"$expr":      bson.M{"$lt": bson.A{"$security.login_attempts", "$security.max_login_attempts"}},
		},
		bson.M{
			"$inc": bson.M{"security.login_attempts": 1},
			"$set": bson.M{"security.last_attempt_at": at.UTC(), "updated_at": at.UTC()},
		},
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

func (r *sessionRepo) ResetAttempts(ctx context.Context, sessionID string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{"security.login_attempts": 0, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

// transition applies update only when the session is in one of from.
func (r *sessionRepo) transition(ctx context.Context, sessionID string, from []models.SessionStatus, update bson.M) error {
	in := bson.A{}
	for _, s := range from {
		in = append(in, s)
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"session_id": sessionID, "status": bson.M{"$in": in}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrStateMismatch
	}
	return nil
}

func (r *sessionRepo) Activate(ctx context.Context, sessionID string, joinedAt, accessEnd time.Time) error {
	return r.transition(ctx, sessionID, []models.SessionStatus{models.StatusScheduled}, bson.M{
		"$set": bson.M{
			"status":                    models.StatusActive,
			"access_control.is_active":  true,
			"access_control.joined_at":  joinedAt.UTC(),
			"access_control.access_end": accessEnd.UTC(),
			"updated_at":                joinedAt.UTC(),
		},
	})
}

func (r *sessionRepo) Complete(ctx context.Context, sessionID string, leftAt time.Time, minutesSpent int) error {
	return r.transition(ctx, sessionID, models.OpenStatuses, bson.M{
		"$set": bson.M{
			"status":                                  models.StatusCompleted,
			"access_control.is_active":                false,
			"access_control.left_at":                  leftAt.UTC(),
			"access_control.total_minutes_spent":      minutesSpent,
			"conversation.awaiting_coding_submission": false,
			"ended_at":                                leftAt.UTC(),
			"updated_at":                              leftAt.UTC(),
		},
		"$unset": bson.M{"open_key": ""},
	})
}

func (r *sessionRepo) Cancel(ctx context.Context, sessionID string, at time.Time) error {
	return r.transition(ctx, sessionID, models.OpenStatuses, bson.M{
		"$set": bson.M{
			"status":                   models.StatusCancelled,
			"access_control.is_active": false,
			"cancelled_at":             at.UTC(),
			"updated_at":               at.UTC(),
		},
		"$unset": bson.M{"open_key": ""},
	})
}

func (r *sessionRepo) Expire(ctx context.Context, sessionID string, at time.Time) error {
	return r.transition(ctx, sessionID, models.OpenStatuses, bson.M{
		"$set": bson.M{
			"status":                   models.StatusExpired,
			"access_control.is_active": false,
			"expired_at":               at.UTC(),
			"updated_at":               at.UTC(),
		},
		"$unset": bson.M{"open_key": ""},
	})
}

// ExpireOverdue marks every open session whose access window closed before now.
func (r *sessionRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	accessEnd := bson.M{"$add": bson.A{
		"$window.scheduled_end",
		bson.M{"$multiply": bson.A{"$window.after_grace_minutes", 60 * 1000}},
	}}
	res, err := r.col.UpdateMany(ctx,
		bson.M{
			"status": bson.M{"$in": openStatuses()},
			"$expr":  bson.M{"$lt": bson.A{accessEnd, now.UTC()}},
		},
		bson.M{
			"$set": bson.M{
				"status":                   models.StatusExpired,
				"access_control.is_active": false,
				"expired_at":               now.UTC(),
				"updated_at":               now.UTC(),
			},
			"$unset": bson.M{"open_key": ""},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *sessionRepo) SetPreparedIfAbsent(ctx context.Context, sessionID string, pc *models.PreparedContent) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "prepared_content": nil},
		bson.M{"$set": bson.M{"prepared_content": pc, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrStateMismatch
	}
	return nil
}

func (r *sessionRepo) InitConversation(ctx context.Context, sessionID string, msgs []models.Message) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"session_id":              sessionID,
			"status":                  models.StatusActive,
			"conversation.messages.0": bson.M{"$exists": false},
		},
		bson.M{
			"$push": bson.M{"conversation.messages": bson.M{"$each": msgs}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrStateMismatch
	}
	return nil
}

func (r *sessionRepo) AppendMessages(ctx context.Context, sessionID string, msgs ...models.Message) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"session_id": sessionID, "status": models.StatusActive},
		bson.M{
			"$push": bson.M{"conversation.messages": bson.M{"$each": msgs}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrStateMismatch
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// openRecord matches a coding record whose submitted_at is null or missing.
func openRecord() bson.M {
	return bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$$r.submitted_at", nil}}, nil}}
}

func mapRecords(in bson.M) bson.M {
	return bson.M{"$map": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$conversation.coding_test_records", bson.A{}}},
		"as":    "r",
		"in":    in,
	}}
}

func appendMessage(msg models.Message) bson.M {
	return bson.M{"$concatArrays": bson.A{
		bson.M{"$ifNull": bson.A{"$conversation.messages", bson.A{}}},
		bson.A{bson.M{"$literal": msg}},
	}}
}

// StartCoding closes any open coding record as abandoned, opens rec, pauses
// the interviewer and appends the announcement, all in one pipeline update.
func (r *sessionRepo) StartCoding(ctx context.Context, sessionID string, rec models.CodingTestRecord, announce models.Message) error {
	at := rec.StartedAt.UTC()
	rec.SubmittedAt = nil
	closed := mapRecords(bson.M{"$cond": bson.A{
		openRecord(),
		bson.M{"$mergeObjects": bson.A{"$$r", bson.M{"submitted_at": at, "abandoned": true}}},
		"$$r",
	}})
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"conversation.coding_test_records":        bson.M{"$concatArrays": bson.A{closed, bson.A{bson.M{"$literal": rec}}}},
			"conversation.awaiting_coding_submission": true,
			"conversation.messages":                   appendMessage(announce),
			"updated_at":                              at,
		}}},
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"session_id": sessionID, "status": models.StatusActive}, pipeline)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrStateMismatch
	}
	return nil
}

// FinishCoding closes the open coding record, resumes the interviewer and
// appends the submission message.
func (r *sessionRepo) FinishCoding(ctx context.Context, sessionID string, sub models.CodingSubmission, msg models.Message) error {
	at := sub.SubmittedAt.UTC()
	closed := mapRecords(bson.M{"$cond": bson.A{
		openRecord(),
		bson.M{"$mergeObjects": bson.A{"$$r", bson.M{
			"submitted_at":   at,
			"passed":         sub.Passed,
			"language":       bson.M{"$literal": sub.Language},
			"result_summary": bson.M{"$literal": sub.ResultSummary},
			"artifact_path":  bson.M{"$literal": sub.ArtifactPath},
		}}},
		"$$r",
	}})
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"conversation.coding_test_records":        closed,
			"conversation.awaiting_coding_submission": false,
			"conversation.messages":                   appendMessage(msg),
			"updated_at":                              at,
		}}},
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"session_id": sessionID, "status": models.StatusActive}, pipeline)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrStateMismatch
	}
	return nil
}
