// Package events fans progress/completion/error events out to subscribed listeners,
// typically one Server-Sent Events stream per connected UI client.
package events

import (
	"encoding/json"
	"sync"

	"weibo-harvester/internal/platform/logger"
	"weibo-harvester/internal/services/harvester/domain"
)

// Envelope is the wire shape of every event pushed to a subscriber
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans events out to subscribed channels. Delivery is best-effort: a slow or
// absent subscriber never blocks the engine, and event loss never corrupts persisted
// state, which remains the durable source of truth.
type Broker struct {
	mu   sync.RWMutex
	subs map[int]chan Envelope
	next int

	log *logger.Logger
}

// New builds an empty Broker
func New() *Broker {
	return &Broker{subs: map[int]chan Envelope{}, log: logger.Named("harvester.events")}
}

// Subscribe registers a new listener and returns its channel plus an unsubscribe func.
// The channel is buffered; events published while a subscriber's buffer is full are
// dropped for that subscriber rather than stalling the publisher.
func (b *Broker) Subscribe(buffer int) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Envelope, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, unsubscribe
}

func (b *Broker) publish(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- env:
		default:
			b.log.Warn().Int("subscriber", id).Str("type", env.Type).Msg("dropping event, subscriber buffer full")
		}
	}
}

// Progress implements domain.EventEmitter
func (b *Broker) Progress(ev domain.ProgressEvent) { b.publish(Envelope{Type: "progress", Data: ev}) }

// Completed implements domain.EventEmitter
func (b *Broker) Completed(ev domain.CompletedEvent) { b.publish(Envelope{Type: "completed", Data: ev}) }

// Error implements domain.EventEmitter
func (b *Broker) Error(ev domain.ErrorEvent) { b.publish(Envelope{Type: "error", Data: ev}) }

// MarshalSSE renders one envelope as an SSE "event: <type>\ndata: <json>\n\n" frame
func MarshalSSE(env Envelope) ([]byte, error) {
	body, err := json.Marshal(env.Data)
	if err != nil {
		return nil, err
	}
	frame := "event: " + env.Type + "\ndata: " + string(body) + "\n\n"
	return []byte(frame), nil
}

var _ domain.EventEmitter = (*Broker)(nil)
