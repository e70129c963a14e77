// Package memory keeps completion messages in process. The daemon uses it
// when no broker is configured; tests use it to inspect what was sent.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Message is one published completion message. Data holds the JSON
// encoding the broker-backed publishers would have sent.
type Message struct {
	ID    string
	Topic string
	Data  json.RawMessage
}

// Publisher records messages per topic, keeping at most limit per topic.
type Publisher struct {
	mu     sync.RWMutex
	seq    int64
	limit  int
	topics map[string][]Message
}

// New returns a Publisher. limit <= 0 keeps every message.
func New(limit int) *Publisher {
	return &Publisher{limit: limit, topics: make(map[string][]Message)}
}

// Publish encodes payload and appends it to topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode message for %s: %w", topic, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	msg := Message{ID: topic + "-" + strconv.FormatInt(p.seq, 10), Topic: topic, Data: data}
	msgs := append(p.topics[topic], msg)
	if p.limit > 0 && len(msgs) > p.limit {
		msgs = append([]Message(nil), msgs[len(msgs)-p.limit:]...)
	}
	p.topics[topic] = msgs
	return msg.ID, nil
}

// Messages returns a copy of the messages retained for topic, oldest first.
func (p *Publisher) Messages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Message(nil), p.topics[topic]...)
}

// Decode unmarshals the payload of msg into v.
func Decode[T any](msg Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return v, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	return v, nil
}
