package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"unitattendance/internal/attendance"
)

// TypeSessionClosed tags a message whose body is a JSON attendance.SessionSummary.
const TypeSessionClosed = "session_closed"

// SessionPublisher forwards closed-session summaries to a queue.
type SessionPublisher struct {
	q Queue
}

// NewSessionPublisher wraps q as an attendance.Notifier.
func NewSessionPublisher(q Queue) *SessionPublisher {
	return &SessionPublisher{q: q}
}

// SessionClosed publishes the summary.
func (p *SessionPublisher) SessionClosed(ctx context.Context, s attendance.SessionSummary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session summary: %w", err)
	}
	return p.q.Publish(ctx, Message{Type: TypeSessionClosed, Body: body})
}

// DecodeSummary parses a session_closed message.
func DecodeSummary(msg Message) (attendance.SessionSummary, error) {
	var s attendance.SessionSummary
	if msg.Type != TypeSessionClosed {
		return s, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	if err := json.Unmarshal(msg.Body, &s); err != nil {
		return s, fmt.Errorf("decode session summary: %w", err)
	}
	return s, nil
}

// ConsumeSummaries decodes session_closed messages from q and hands each to handle
// until ctx is done. Other message types and undecodable bodies are logged and dropped.
func ConsumeSummaries(ctx context.Context, q Queue, handle func(context.Context, attendance.SessionSummary) error) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range messages {
		s, err := DecodeSummary(msg)
		if err != nil {
			log.Printf("skip message: %v", err)
			continue
		}
		if err := handle(ctx, s); err != nil {
			log.Printf("handle session %s (%s) failed: %v", s.ID, s.UnitCode, err)
			continue
		}
		log.Printf("session %s for %s stored: %d present, %d absent (%s)", s.ID, s.UnitCode, s.Present, s.AbsentMarked, s.Reason)
	}
	return nil
}
