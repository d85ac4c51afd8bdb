package eventsvc

import (
	"context"
	"sync"

	"github.com/sautiplus/backoffice/core"
)

// LogPublisher logs events; used when no broker is configured.
type LogPublisher struct {
	logger core.Logger
}

var _ core.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...core.Event) {
	for _, evt := range events {
		p.logger.Debug("event", "type", evt.Type, "key", evt.Key)
	}
}

// Recorder keeps published events in memory, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []core.Event
}

var _ core.EventPublisher = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, events ...core.Event) {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
}

// Events returns the recorded events, optionally only those of the given types.
func (r *Recorder) Events(types ...string) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(types) == 0 {
		return append([]core.Event(nil), r.events...)
	}
	var out []core.Event
	for _, evt := range r.events {
		for _, typ := range types {
			if evt.Type == typ {
				out = append(out, evt)
				break
			}
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// New returns a kafka publisher when brokers are configured, a log publisher otherwise.
// The returned close func releases the publisher's connections.
func New(logger core.Logger, conf *core.Config) (core.EventPublisher, func() error, error) {
	if len(conf.Kafka.Brokers) == 0 {
		return NewLogPublisher(logger), func() error { return nil }, nil
	}
	p, err := NewKafkaPublisher(logger, conf)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}
