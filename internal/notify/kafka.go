// Package notify delivers transactional email events. The service never
// renders or sends mail itself; it hands a templated event to the email
// worker over Kafka and treats broker acknowledgement as delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/client"
	"github.com/pratik-me/e-shop/internal/util"
)

// EmailEvent is the wire format consumed by the email worker.
type EmailEvent struct {
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Template  string            `json:"template"`
	Vars      map[string]string `json:"vars"`
	SentAt    time.Time         `json:"sent_at"`
}

// KafkaNotifier publishes email events to the configured topic with
// synchronous acks, so a broker failure fails the triggering request.
type KafkaNotifier struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaNotifier(producer *client.KafkaProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Send(ctx context.Context, recipient, subject, template string, vars map[string]string) error {
	event := EmailEvent{
		Recipient: recipient,
		Subject:   subject,
		Template:  template,
		Vars:      vars,
		SentAt:    time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode email event: %w", err)
	}

	headers := map[string]string{"template": template}
	if err := n.producer.ProduceMessage(ctx, n.topic, []byte(recipient), payload, headers); err != nil {
		return fmt.Errorf("failed to publish email event: %w", err)
	}

	util.Debug("Email event published",
		zap.String("recipient", recipient),
		zap.String("template", template))
	return nil
}
