package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/queue"
	"github.com/rs/xid"
)

const defaultBuffer = 64

// Subscription is a local feed of envelopes. Envelopes arrive on C until
// the subscription is passed to Unsubscribe, which closes C.
type Subscription struct {
	C <-chan Envelope

	id    string
	jobID string
	ch    chan Envelope
}

// JobID is the job the subscription is narrowed to, or empty for all jobs.
func (s *Subscription) JobID() string { return s.jobID }

// Publisher emits job lifecycle envelopes to a frame queue and fans them
// out to in-process subscriptions. With a nil queue manager only local
// subscriptions see events.
type Publisher struct {
	queueMgr queue.Manager
	source   string
	queueRef string

	mu   sync.RWMutex
	subs map[string]*Subscription
}

func NewPublisher(queueMgr queue.Manager, source string, queueRef string) *Publisher {
	return &Publisher{
		queueMgr: queueMgr,
		source:   source,
		queueRef: queueRef,
		subs:     make(map[string]*Subscription),
	}
}

// Emit wraps data in an envelope for jobID and publishes it. A full
// subscription buffer drops the envelope for that subscriber only.
func (p *Publisher) Emit(ctx context.Context, eventType EventType, jobID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env := Envelope{
		ID:        xid.New().String(),
		Type:      eventType,
		Source:    p.source,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}

	p.mu.RLock()
	for _, sub := range p.subs {
		if sub.jobID != "" && sub.jobID != jobID {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			slog.WarnContext(ctx, "event dropped for slow subscriber",
				slog.String("subscription", sub.id),
				slog.String("event_type", string(eventType)),
				slog.String("job_id", jobID),
			)
		}
	}
	p.mu.RUnlock()

	if p.queueMgr == nil {
		return nil
	}
	return p.queueMgr.Publish(ctx, p.queueRef, env)
}

// Subscribe opens a local subscription. An empty jobID receives every
// job's events.
func (p *Publisher) Subscribe(jobID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Envelope, buffer)
	sub := &Subscription{C: ch, id: xid.New().String(), jobID: jobID, ch: ch}

	p.mu.Lock()
	p.subs[sub.id] = sub
	p.mu.Unlock()
	return sub
}

// Unsubscribe detaches sub and closes its channel. Repeated calls are no-ops.
func (p *Publisher) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[sub.id]; !ok {
		return
	}
	delete(p.subs, sub.id)
	close(sub.ch)
}
