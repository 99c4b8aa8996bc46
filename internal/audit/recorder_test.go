package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pratik-me/e-shop/internal/bucketing"
	"github.com/pratik-me/e-shop/internal/config"
	"github.com/pratik-me/e-shop/internal/model"
)

func TestRecordWithoutSinksIsANoOp(t *testing.T) {
	buckets := bucketing.NewManager(&config.Config{
		Bucketing: config.BucketingConfig{AccountBuckets: 64, EventBuckets: 16},
	})
	recorder := NewRecorder(nil, nil, buckets, "auth_events", "auth-events")

	// Recording must never panic or fail the caller, even with no sinks.
	assert.NotPanics(t, func() {
		recorder.Record(context.Background(), ActionLogin, model.KindUser, "buyer@example.com", "acc-1", "")
	})
}
