// Package memory is the dry-run notifier: run summaries are encoded exactly as
// they would be for Pub/Sub, then logged and kept in memory instead of sent.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Message is one recorded publish.
type Message struct {
	ID      string
	Topic   string
	Payload any
	// Data is the JSON body a real publisher would have sent.
	Data []byte
}

// Publisher records run summaries. Safe for concurrent use.
type Publisher struct {
	logger   *zap.Logger
	mu       sync.Mutex
	messages []Message
}

// New returns a dry-run Publisher that logs through logger.
func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger.Named("dry_run_notify")}
}

// Publish encodes payload, logs it and records it under a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	id := fmt.Sprintf("dry-run-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Payload: payload, Data: data})
	p.mu.Unlock()

	p.logger.Info("run summary not sent",
		zap.String("topic", topic),
		zap.String("message_id", id),
		zap.ByteString("data", data),
	)
	return id, nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Close is a no-op; nothing is buffered.
func (p *Publisher) Close() error { return nil }
