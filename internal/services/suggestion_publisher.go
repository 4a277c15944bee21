package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gumbo/internal/models"
)

// Delivery event types
const (
	EventSuggestionBatch = "suggestion_batch"
	EventRateLimited     = "rate_limited"
	EventError           = "error"
)

const latestBatchTTL = 24 * time.Hour

// SuggestionPublisher hands results to whatever delivers them to the user
type SuggestionPublisher interface {
	PublishBatch(ctx context.Context, batch *models.SuggestionBatch) error
	PublishRateLimited(ctx context.Context, wait time.Duration, nextAvailable time.Time) error
	PublishError(ctx context.Context, step string, cause error) error
}

// MessageBroker is the subset of RedisService the publisher needs
type MessageBroker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// SuggestionEvent is the envelope published on the suggestion channel
type SuggestionEvent struct {
	Type       string                 `json:"type"`
	InstanceID string                 `json:"instanceId"`
	Timestamp  time.Time              `json:"timestamp"`
	Payload    map[string]interface{} `json:"payload"`
}

// RedisSuggestionPublisher publishes suggestion events on a Redis channel and keeps
// the latest batch under "<channel>:latest" for late subscribers
type RedisSuggestionPublisher struct {
	broker     MessageBroker
	channel    string
	instanceID string
	now        func() time.Time
}

// NewRedisSuggestionPublisher creates a publisher on channel
func NewRedisSuggestionPublisher(broker MessageBroker, channel, instanceID string) *RedisSuggestionPublisher {
	return &RedisSuggestionPublisher{
		broker:     broker,
		channel:    channel,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// PublishBatch publishes a suggestion_batch event
func (p *RedisSuggestionPublisher) PublishBatch(ctx context.Context, batch *models.SuggestionBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	if err := p.publish(ctx, EventSuggestionBatch, map[string]interface{}{
		"batch": json.RawMessage(data),
	}); err != nil {
		return err
	}

	if err := p.broker.Set(ctx, p.channel+":latest", data, latestBatchTTL); err != nil {
		log.Printf("⚠️ [PUBLISHER] Failed to store latest batch %s: %v", batch.BatchID, err)
	}

	log.Printf("📤 [PUBLISHER] Published batch %s (%d suggestions)", batch.BatchID, len(batch.Suggestions))
	return nil
}

// PublishRateLimited tells subscribers when the next batch may be generated
func (p *RedisSuggestionPublisher) PublishRateLimited(ctx context.Context, wait time.Duration, nextAvailable time.Time) error {
	return p.publish(ctx, EventRateLimited, map[string]interface{}{
		"wait_time_seconds": wait.Seconds(),
		"next_available_at": nextAvailable.UTC(),
	})
}

// PublishError reports a failed pipeline step
func (p *RedisSuggestionPublisher) PublishError(ctx context.Context, step string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return p.publish(ctx, EventError, map[string]interface{}{
		"step":  step,
		"error": message,
	})
}

func (p *RedisSuggestionPublisher) publish(ctx context.Context, eventType string, payload map[string]interface{}) error {
	event := SuggestionEvent{
		Type:       eventType,
		InstanceID: p.instanceID,
		Timestamp:  p.now().UTC(),
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	if err := p.broker.Publish(ctx, p.channel, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}
