package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/attendify/syncbridge/internal/broker"
	errspkg "github.com/attendify/syncbridge/internal/pipeline/errors"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
	metricspkg "github.com/attendify/syncbridge/internal/pipeline/metrics"
	"github.com/attendify/syncbridge/internal/wire"
)

// SubscriberSource opens a subscriber for an inbound binding. Opening the
// subscription declares the exchange, queue, and binding idempotently.
type SubscriberSource interface {
	Subscriber(binding broker.Binding) (message.Subscriber, error)
}

// Drainer runs one bounded drain per scheduler tick: it pulls at most
// prefetch messages from each inbound queue, applies them, and exits.
// Invocations are independent; nothing survives between runs except the
// queues and the store.
type Drainer struct {
	source   SubscriberSource
	bindings []broker.Binding
	applier  *Applier
	prefetch int
	idleWait time.Duration
	logger   loggingpkg.ServiceLogger
	metrics  *metricspkg.PipelineMetrics
}

// NewDrainer constructs a drainer over the given inbound bindings.
func NewDrainer(source SubscriberSource, bindings []broker.Binding, applier *Applier, prefetch int, idleWait time.Duration, log loggingpkg.ServiceLogger, met *metricspkg.PipelineMetrics) *Drainer {
	return &Drainer{
		source:   source,
		bindings: bindings,
		applier:  applier,
		prefetch: prefetch,
		idleWait: idleWait,
		logger:   log,
		metrics:  met,
	}
}

// RunOnce performs one drain invocation. A connect or declare failure aborts
// the run without acknowledging anything in flight; the messages stay queued
// for the next scheduled tick, which is the only retry mechanism.
func (d *Drainer) RunOnce(ctx context.Context) error {
	for _, binding := range d.bindings {
		if err := d.drainQueue(ctx, binding); err != nil {
			return err
		}
	}
	return nil
}

func (d *Drainer) drainQueue(ctx context.Context, binding broker.Binding) error {
	sub, err := d.source.Subscriber(binding)
	if err != nil {
		d.logger.Error("drain aborted, subscriber unavailable", err, loggingpkg.LogFields{"queue": binding.Queue})
		return err
	}
	defer func() {
		if cerr := sub.Close(); cerr != nil {
			d.logger.Error("closing drain subscriber", cerr, loggingpkg.LogFields{"queue": binding.Queue})
		}
	}()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs, err := sub.Subscribe(subCtx, binding.RoutingKey)
	if err != nil {
		d.logger.Error("drain aborted, subscribe failed", err, loggingpkg.LogFields{"queue": binding.Queue})
		return err
	}

	for processed := 0; processed < d.prefetch; processed++ {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			d.handle(ctx, binding, msg)
		case <-time.After(d.idleWait):
			// Queue is empty; stop early.
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// handle processes one message and always acknowledges it: either the apply
// completed, or the message was recognized as a no-op or poison. The ack is
// issued only after the apply step finishes.
func (d *Drainer) handle(ctx context.Context, binding broker.Binding, msg *message.Message) {
	kind, rec, err := wire.Decode(msg.Payload)
	if err != nil {
		d.metrics.Dropped(dropReason(err))
		d.logger.Error("poison message dropped", err, loggingpkg.LogFields{
			"queue":      binding.Queue,
			"message_id": msg.UUID,
		})
		msg.Ack()
		return
	}
	if kind != wire.KindUserMessage {
		d.metrics.Skipped("unexpected_kind")
		d.logger.Info("non-user message skipped", loggingpkg.LogFields{
			"queue": binding.Queue,
			"kind":  string(kind),
		})
		msg.Ack()
		return
	}

	if err := d.applier.Apply(ctx, rec); err != nil {
		// Handled failure: the message is consumed either way; requeueing a
		// record the store rejects would loop forever.
		d.metrics.Dropped("apply_failed")
		d.logger.Error("apply failed, message dropped", err, loggingpkg.LogFields{
			"queue":      binding.Queue,
			"subject_id": rec.SubjectID,
			"action":     string(rec.Action),
		})
	}
	msg.Ack()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, errspkg.ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, errspkg.ErrUnknownMessageKind):
		return "unknown_kind"
	default:
		return "malformed_payload"
	}
}
