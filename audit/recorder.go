package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hotelhub/metrics"
)

const (
	defaultBuffer     = 1024
	defaultBatchSize  = 100
	defaultFlushEvery = time.Second
	drainTimeout      = 5 * time.Second
)

// Recorder queues events in a bounded buffer and publishes them in batches
// from a single background worker. Record never blocks the request path.
type Recorder struct {
	events     chan Event
	pub        Publisher
	logger     *zap.Logger
	batchSize  int
	flushEvery time.Duration
	done       chan struct{}
}

// NewRecorder creates a recorder holding up to buffer pending events.
func NewRecorder(pub Publisher, buffer int, logger *zap.Logger) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		events:     make(chan Event, buffer),
		pub:        pub,
		logger:     logger,
		batchSize:  defaultBatchSize,
		flushEvery: defaultFlushEvery,
		done:       make(chan struct{}),
	}
}

// Record enqueues e and reports whether it was accepted. A full buffer drops
// the event.
func (r *Recorder) Record(e Event) bool {
	select {
	case r.events <- e:
		metrics.AuditEvents.WithLabelValues("queued").Inc()
		return true
	default:
		metrics.AuditEvents.WithLabelValues("dropped").Inc()
		r.logger.Warn("audit buffer full, event dropped", zap.String("type", e.Type), zap.String("id", e.ID))
		return false
	}
}

// Run publishes queued events until ctx ends, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	batch := make([]Event, 0, r.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		r.publish(ctx, batch)
		batch = make([]Event, 0, r.batchSize)
	}

	for {
		select {
		case e := <-r.events:
			batch = append(batch, e)
			if len(batch) >= r.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
		drain:
			for {
				select {
				case e := <-r.events:
					batch = append(batch, e)
				default:
					break drain
				}
			}
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			flush(fctx)
			cancel()
			return
		}
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) publish(ctx context.Context, batch []Event) {
	if err := r.pub.Publish(ctx, batch); err != nil {
		metrics.AuditEvents.WithLabelValues("publish_error").Add(float64(len(batch)))
		r.logger.Error("publish audit events", zap.Error(err), zap.Int("count", len(batch)))
		return
	}
	metrics.AuditEvents.WithLabelValues("published").Add(float64(len(batch)))
}
