// Package telemetry delivers analytics events in the background.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

const (
	defaultBuffer  = 256
	deliverTimeout = 5 * time.Second
)

// Dispatcher queues events and writes them to a sink from one goroutine.
// Publish never blocks; events are dropped when the queue is full.
type Dispatcher struct {
	sink   analysis.EventSink
	logger *slog.Logger
	queue  chan analysis.Event
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the delivery goroutine. A nil sink only logs events.
func NewDispatcher(sink analysis.EventSink, buffer int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	d := &Dispatcher{sink: sink, logger: logger, queue: make(chan analysis.Event, buffer)}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) Publish(e analysis.Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("telemetry.dropped", "event", e.Name)
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		if err := d.sink.Record(ctx, e); err != nil {
			d.logger.Warn("telemetry.record_failed", "event", e.Name, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

// LogSink writes events to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Record(_ context.Context, e analysis.Event) error {
	s.Logger.Info("telemetry.event", "id", e.ID, "name", e.Name, "owner", e.OwnerID, "props", e.Props)
	return nil
}
