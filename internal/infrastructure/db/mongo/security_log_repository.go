package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

const securityLogCollection = "security_logs"

// SecurityLogRepository is the MongoDB sink for security log entries,
// selected with AUDIT_SINK=mongo.
type SecurityLogRepository struct {
	coll *mongo.Collection
}

func NewSecurityLogRepository(db *mongo.Database) *SecurityLogRepository {
	return &SecurityLogRepository{coll: db.Collection(securityLogCollection)}
}

type mongoSecurityLog struct {
	ID        string         `bson:"_id"`
	UserID    string         `bson:"user_id"`
	Activity  string         `bson:"activity_type"`
	Severity  string         `bson:"severity"`
	Details   map[string]any `bson:"details,omitempty"`
	IP        string         `bson:"ip_address,omitempty"`
	UserAgent string         `bson:"user_agent,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}

// EnsureIndexes creates the indexes used by List.
func (r *SecurityLogRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "activity_type", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create security log indexes: %w", err)
	}
	return nil
}

func (r *SecurityLogRepository) Append(ctx context.Context, e *domain.SecurityLogEntry) error {
	doc := mongoSecurityLog{
		ID:        e.ID,
		UserID:    e.UserID,
		Activity:  string(e.Activity),
		Severity:  string(e.Severity),
		Details:   e.Details,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: e.OccurredAt.UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert security log: %w", err)
	}
	return nil
}

// List returns matching entries newest first.
func (r *SecurityLogRepository) List(ctx context.Context, f domain.SecurityLogFilter) ([]*domain.SecurityLogEntry, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	if f.Activity != "" {
		filter["activity_type"] = string(f.Activity)
	}
	if !f.Since.IsZero() {
		filter["created_at"] = bson.M{"$gte": f.Since.UTC()}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find security logs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoSecurityLog
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode security logs: %w", err)
	}

	out := make([]*domain.SecurityLogEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, &domain.SecurityLogEntry{
			ID:         d.ID,
			UserID:     d.UserID,
			Activity:   domain.Activity(d.Activity),
			Severity:   domain.Severity(d.Severity),
			Details:    d.Details,
			IP:         d.IP,
			UserAgent:  d.UserAgent,
			OccurredAt: d.CreatedAt.UTC(),
		})
	}
	return out, nil
}
