package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crm-backend/internal/bucketing"
	"crm-backend/internal/client"
	"crm-backend/internal/config"
	"crm-backend/internal/models"
	"crm-backend/internal/util"
)

const (
	securityEventsTable = "security_events"
	loginAttemptsTable  = "login_attempts"
	securityEventIndex  = "security-events"

	sinkTimeout = 5 * time.Second
)

// Recorder fans security events out to the audit sinks: ClickHouse for the
// durable trail, Kafka for downstream consumers and Elasticsearch for
// incident search. All sinks are fire-and-forget; a sink failure is logged
// and never fails the login path that produced the event.
type Recorder struct {
	clickhouse *client.ClickHouseClient
	producer   *client.KafkaProducer
	es         *client.ESClient
	buckets    *bucketing.BucketingManager
	topic      string
}

func NewRecorder(cfg *config.Config, ch *client.ClickHouseClient, producer *client.KafkaProducer, es *client.ESClient, buckets *bucketing.BucketingManager) *Recorder {
	return &Recorder{
		clickhouse: ch,
		producer:   producer,
		es:         es,
		buckets:    buckets,
		topic:      cfg.Kafka.SecurityTopic,
	}
}

// RecordEvent dispatches one security event to all sinks in the background.
func (r *Recorder) RecordEvent(event *models.SecurityEvent) {
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}
	event.EventBucket = r.buckets.EventBucket(event.EventTime)
	if event.CorrelationID == "" {
		event.CorrelationID = uuid.New().String()
	}

	go r.dispatch(event)
}

func (r *Recorder) dispatch(event *models.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if r.clickhouse != nil {
		if err := r.clickhouse.Exec(ctx, `
            INSERT INTO `+securityEventsTable+`
                (event_bucket, event_time, event_type, user_id, email, session_id,
                 ip_address, user_agent, correlation_id, details)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.EventBucket, event.EventTime, event.EventType, event.UserID,
			event.Email, event.SessionID, event.IPAddress.String(),
			event.UserAgent, event.CorrelationID, event.Details); err != nil {
			util.Error("Failed to write security event to clickhouse",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to marshal security event", zap.Error(err))
		return
	}

	if r.producer != nil {
		if err := r.producer.ProduceMessage(ctx, r.topic, []byte(event.UserID), payload, map[string]string{
			"event_type":     event.EventType,
			"correlation_id": event.CorrelationID,
		}); err != nil {
			util.Error("Failed to publish security event",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}

	if r.es != nil {
		if err := r.es.IndexDocument(ctx, securityEventIndex, event.CorrelationID, payload); err != nil {
			util.Error("Failed to index security event",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}
}

// RecordLoginAttempt appends one row to the login attempt trail. Every
// attempt is recorded regardless of outcome, rate limited ones included.
func (r *Recorder) RecordLoginAttempt(attempt *models.LoginAttempt) {
	if attempt.AttemptAt.IsZero() {
		attempt.AttemptAt = time.Now().UTC()
	}
	attempt.EventBucket = r.buckets.EventBucket(attempt.AttemptAt)

	if r.clickhouse == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		if err := r.clickhouse.Exec(ctx, `
            INSERT INTO `+loginAttemptsTable+`
                (event_bucket, attempt_at, email, user_id, ip_address, user_agent, status)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
			attempt.EventBucket, attempt.AttemptAt, attempt.Email,
			attempt.UserID, attempt.IPAddress.String(), attempt.UserAgent,
			attempt.Status); err != nil {
			util.Error("Failed to write login attempt",
				zap.String("status", attempt.Status),
				zap.Error(err))
		}
	}()
}
