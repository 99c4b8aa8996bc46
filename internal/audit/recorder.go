// Package audit records security-relevant authentication events. Recording
// is best effort: a sink failure is logged and never propagated, so audit
// outages cannot block logins or registrations.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/bucketing"
	"github.com/pratik-me/e-shop/internal/client"
	"github.com/pratik-me/e-shop/internal/model"
	"github.com/pratik-me/e-shop/internal/util"
)

// Event actions recorded by the auth flows.
const (
	ActionOTPIssued      = "otp_issued"
	ActionOTPInvalid     = "otp_invalid"
	ActionAccountLocked  = "account_locked"
	ActionLogin          = "login"
	ActionLoginFailed    = "login_failed"
	ActionTokenRefreshed = "token_refreshed"
	ActionPasswordReset  = "password_reset"
	ActionRegistered     = "registered"
)

type Event struct {
	EventID     string            `json:"event_id"`
	Action      string            `json:"action"`
	Email       string            `json:"email"`
	AccountID   string            `json:"account_id,omitempty"`
	AccountKind model.AccountKind `json:"account_kind"`
	EventBucket int               `json:"event_bucket"`
	DateBucket  string            `json:"date_bucket"`
	Detail      string            `json:"detail,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Recorder writes events to ClickHouse for analytics and mirrors them into
// Elasticsearch for support lookups. Either sink may be nil when the backing
// store is not configured.
type Recorder struct {
	clickhouse *client.ClickHouseClient
	es         *client.ESClient
	buckets    *bucketing.Manager
	table      string
	index      string
}

func NewRecorder(ch *client.ClickHouseClient, es *client.ESClient, buckets *bucketing.Manager, table, index string) *Recorder {
	return &Recorder{
		clickhouse: ch,
		es:         es,
		buckets:    buckets,
		table:      table,
		index:      index,
	}
}

// Record persists the event to every configured sink.
func (r *Recorder) Record(ctx context.Context, action string, kind model.AccountKind, email, accountID, detail string) {
	event := Event{
		EventID:     uuid.New().String(),
		Action:      action,
		Email:       email,
		AccountID:   accountID,
		AccountKind: kind,
		EventBucket: r.buckets.EventBucket(email),
		DateBucket:  r.buckets.DateBucket(),
		Detail:      detail,
		OccurredAt:  time.Now().UTC(),
	}

	r.writeClickhouse(ctx, event)
	r.writeElasticsearch(ctx, event)
}

func (r *Recorder) writeClickhouse(ctx context.Context, event Event) {
	if r.clickhouse == nil {
		return
	}

	query := "INSERT INTO " + r.table +
		" (event_id, action, email, account_id, account_kind, event_bucket, date_bucket, detail, occurred_at)" +
		" VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"

	err := r.clickhouse.Exec(ctx, query,
		event.EventID, event.Action, event.Email, event.AccountID,
		string(event.AccountKind), event.EventBucket, event.DateBucket,
		event.Detail, event.OccurredAt)
	if err != nil {
		util.Warn("Failed to record audit event in ClickHouse",
			zap.String("action", event.Action),
			zap.Error(err))
	}
}

func (r *Recorder) writeElasticsearch(ctx context.Context, event Event) {
	if r.es == nil {
		return
	}

	res, err := r.es.IndexDocument(ctx, r.index, event.EventID, event)
	if err != nil {
		util.Warn("Failed to index audit event in Elasticsearch",
			zap.String("action", event.Action),
			zap.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		util.Warn("Elasticsearch rejected audit event",
			zap.String("action", event.Action),
			zap.String("status", res.Status()))
	}
}
