package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/util"
)

// LogNotifier logs email events instead of publishing them. Used in
// development when no Kafka broker is reachable; never enabled in
// production.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(_ context.Context, recipient, subject, template string, vars map[string]string) error {
	util.Info("Email event (log only)",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.String("template", template),
		zap.Any("vars", vars))
	return nil
}
