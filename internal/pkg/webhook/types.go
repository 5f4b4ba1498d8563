package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/fitstack/mindbridge/internal/pkg/env"
)

// Payload is the decoded body of an inbound Mindbody webhook request.
type Payload struct {
	EventID        string                 `json:"EventId"`
	SiteID         string                 `json:"SiteId"`
	EventType      string                 `json:"EventType" validate:"required"`
	EventTimestamp *time.Time             `json:"EventTimestamp"`
	EventData      map[string]interface{} `json:"EventData" validate:"required"`
}

// ErrEmptyPayload is returned when the request body is empty.
var ErrEmptyPayload = errors.New("webhook: empty payload")

// ValidationError reports a payload that fails shape validation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "webhook: invalid payload: " + e.Reason
}

// UnsupportedEventError reports an event type outside the configured
// allow-list. Unknown types are rejected, not silently stored.
type UnsupportedEventError struct {
	EventType string
}

func (e *UnsupportedEventError) Error() string {
	return fmt.Sprintf("webhook: unsupported event type %q", e.EventType)
}

// DispatchMode selects how accepted events are handed to processing.
type DispatchMode string

const (
	DispatchSync  DispatchMode = "sync"
	DispatchQueue DispatchMode = "queue"
)

// Config carries the webhook subsystem settings loaded from the environment.
type Config struct {
	Secret            string
	SignatureRequired bool
	SupportedEvents   []string
	MaxRetries        int
	BaseDelaySeconds  int
	Exponential       bool
	MaxDelaySeconds   int
	DispatchMode      DispatchMode

	ProcessedRetentionDays int
	FailedRetentionDays    int
}

var defaultSupportedEvents = []string{
	"appointment.booked",
	"appointment.cancelled",
	"class.updated",
	"classSchedule.created",
	"client.created",
	"client.updated",
	"sale.created",
}

// ConfigFromEnv loads the webhook settings with their documented defaults.
func ConfigFromEnv() Config {
	mode := DispatchMode(env.GetEnv("WEBHOOK_DISPATCH_MODE", string(DispatchQueue)))
	if mode != DispatchSync && mode != DispatchQueue {
		mode = DispatchQueue
	}

	return Config{
		Secret:                 env.GetEnv("MINDBODY_WEBHOOK_SECRET", ""),
		SignatureRequired:      env.GetEnvBool("WEBHOOK_SIGNATURE_REQUIRED", true),
		SupportedEvents:        env.GetEnvList("WEBHOOK_EVENT_TYPES", defaultSupportedEvents),
		MaxRetries:             env.GetEnvInt("WEBHOOK_MAX_RETRIES", 3),
		BaseDelaySeconds:       env.GetEnvInt("WEBHOOK_RETRY_BASE_DELAY", 5),
		Exponential:            env.GetEnvBool("WEBHOOK_RETRY_EXPONENTIAL", true),
		MaxDelaySeconds:        env.GetEnvInt("WEBHOOK_RETRY_MAX_DELAY", 3600),
		DispatchMode:           mode,
		ProcessedRetentionDays: env.GetEnvInt("WEBHOOK_PROCESSED_RETENTION_DAYS", 30),
		FailedRetentionDays:    env.GetEnvInt("WEBHOOK_FAILED_RETENTION_DAYS", 90),
	}
}

// Supports reports whether the event type is in the allow-list.
func (c Config) Supports(eventType string) bool {
	for _, t := range c.SupportedEvents {
		if t == eventType {
			return true
		}
	}
	return false
}
