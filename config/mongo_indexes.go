package config

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes(dbName string) error {
	db, err := MongoDatabase(dbName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions := db.Collection("sessions")
	_, err = sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_id").
				SetUnique(true),
		},
		// open_key only exists while a session is scheduled/active:
		// at most one open session per candidate+job
		{
			Keys: bson.D{{Key: "open_key", Value: 1}},
			Options: options.Index().
				SetName("uniq_open_candidate_job").
				SetUnique(true).
				SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "candidate_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("by_candidate_status_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "window.scheduled_end", Value: 1}},
			Options: options.Index().SetName("by_status_window_end"),
		},
	})
	if err != nil {
		return err
	}

	scheduled := db.Collection("scheduled_sessions")
	_, err = scheduled.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_id").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "end_time", Value: 1}},
			Options: options.Index().SetName("by_status_end_time"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "expired_at", Value: 1}},
			Options: options.Index().SetName("by_status_expired_at"),
		},
	})
	return err
}
