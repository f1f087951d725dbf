package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditLogger records every scan attempt. Best-effort: a write failure
// is logged and never fails the scan.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("scan_audit"),
		logger: logger,
	}
}

type ScanAudit struct {
	ID          uuid.UUID `bson:"_id"`
	PrincipalID uuid.UUID `bson:"principal_id"`
	Code        string    `bson:"code"`
	Outcome     string    `bson:"outcome"`
	TicketID    string    `bson:"ticket_id,omitempty"`
	Timestamp   time.Time `bson:"timestamp"`
}

func (a *AuditLogger) LogScan(ctx context.Context, principalID uuid.UUID, code, outcome, ticketID string) {
	entry := ScanAudit{
		ID:          uuid.New(),
		PrincipalID: principalID,
		Code:        code,
		Outcome:     outcome,
		TicketID:    ticketID,
		Timestamp:   time.Now(),
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		a.logger.Error("failed to insert scan audit", err)
	}
}

func (a *AuditLogger) RecentScans(ctx context.Context, principalID uuid.UUID, limit int64) ([]ScanAudit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, bson.M{"principal_id": principalID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var scans []ScanAudit
	if err := cur.All(ctx, &scans); err != nil {
		return nil, err
	}
	return scans, nil
}
