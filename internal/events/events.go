package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Status values published on a session's status channel.
const (
	StatusReady   = "ready"
	StatusPaused  = "paused"
	StatusResumed = "resumed"
	StatusEnded   = "ended"
)

type Event struct {
	Type      string `json:"type"` // always "status"
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, sessionID, status, message string) error
}

func StatusChannel(sessionID string) string { return "session:" + sessionID + ":status" }

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, sessionID, status, message string) error {
	b, err := json.Marshal(Event{Type: "status", SessionID: sessionID, Status: status, Message: message})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, StatusChannel(sessionID), string(b)).Err()
}

// Nop drops events. Used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, string) error { return nil }
