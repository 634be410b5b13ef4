package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"crm-backend/internal/client"
	"crm-backend/internal/config"
	"crm-backend/internal/util"
)

// Notification kinds published to the notification topic.
const (
	NotifyAccountLocked     = "account_locked"
	NotifyNewDeviceLogin    = "new_device_login"
	NotifyVerificationEmail = "verification_email"
)

type Notification struct {
	Kind      string            `json:"kind"`
	UserID    string            `json:"user_id"`
	Email     string            `json:"email"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier publishes user-facing notification requests to Kafka. Delivery
// (email, push) is handled by a downstream consumer; failures here are
// logged and never surface to the caller.
type Notifier struct {
	producer *client.KafkaProducer
	topic    string
}

func NewNotifier(cfg *config.Config, producer *client.KafkaProducer) *Notifier {
	return &Notifier{
		producer: producer,
		topic:    cfg.Kafka.NotificationTopic,
	}
}

func (n *Notifier) Notify(kind, userID, email string, data map[string]string) {
	if n.producer == nil {
		return
	}

	notification := &Notification{
		Kind:      kind,
		UserID:    userID,
		Email:     email,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		payload, err := json.Marshal(notification)
		if err != nil {
			util.Error("Failed to marshal notification", zap.Error(err))
			return
		}

		if err := n.producer.ProduceMessage(ctx, n.topic, []byte(userID), payload, map[string]string{
			"kind": kind,
		}); err != nil {
			util.Error("Failed to publish notification",
				zap.String("kind", kind),
				zap.Error(err))
		}
	}()
}
