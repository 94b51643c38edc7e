// Package memory provides an in-memory Publisher for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one recorded publication.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher records published payloads in memory.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	seq      int
}

// New creates an in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload and returns a synthetic message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.messages = append(p.messages, Message{Topic: topic, Payload: data})
	return fmt.Sprintf("mem-%d", p.seq), nil
}

// Messages returns a snapshot of recorded messages.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}
