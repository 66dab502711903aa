// Package producer provides an optional Kafka audit sink, used alongside the
// database recorder when a security event pipeline consumes MFA attempts.
package producer

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"enterprise-mfa/backend/internal/audit/domain"
)

type wireEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AdminID   string    `json:"admin_id,omitempty"`
	EventType string    `json:"event_type"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	ClientIP  string    `json:"client_ip"`
	CreatedAt time.Time `json:"created_at"`
}

// KafkaRecorder publishes audit events to a Kafka topic using
// segmentio/kafka-go. It satisfies audit.Recorder.
type KafkaRecorder struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaRecorder creates a recorder that writes audit events to the given
// topic. Returns nil when brokers or topic are unset (Kafka fan-out is
// optional). Call Close when shutting down.
func NewKafkaRecorder(brokers []string, topic string) *KafkaRecorder {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaRecorder{writer: writer, topic: topic}
}

// Record serializes the event as JSON and writes it to the Kafka topic,
// keyed by user so one user's events stay ordered within a partition.
// Best-effort with a short timeout so slow Kafka does not block verification.
func (p *KafkaRecorder) Record(ctx context.Context, e domain.Event) {
	if p == nil || p.writer == nil {
		return
	}
	payload, err := json.Marshal(wireEvent{
		ID: e.ID, UserID: e.UserID, AdminID: e.AdminID, EventType: e.EventType,
		Method: e.Method, Status: string(e.Status), Reason: e.Reason,
		ClientIP: e.ClientIP, CreatedAt: e.CreatedAt,
	})
	if err != nil {
		log.Printf("audit: kafka marshal failed: %v", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(e.UserID),
		Value: payload,
	}); err != nil {
		log.Printf("audit: kafka record failed: %v", err)
	}
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaRecorder) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
