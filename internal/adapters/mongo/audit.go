package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    string    `bson:"user_id,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// Find returns the entries recorded for an action, newest first.
func (a *AuditLogger) Find(ctx context.Context, action string, limit int64) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"action": action}, options.Find().SetSort(bson.M{"timestamp": -1}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	var out []AuditLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LogEvent records one audit entry. A non-empty dedupeKey becomes the document
// id so redelivered broker messages are written once.
func (a *AuditLogger) LogEvent(ctx context.Context, dedupeKey, action, userID string, data map[string]interface{}) error {
	if dedupeKey == "" {
		dedupeKey = uuid.NewString()
	}
	_, err := a.coll.UpdateOne(ctx,
		bson.M{"_id": dedupeKey},
		bson.M{"$setOnInsert": bson.M{
			"action":    action,
			"user_id":   userID,
			"timestamp": time.Now(),
			"data":      bson.M(data),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}
