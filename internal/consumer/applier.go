// Package consumer drains bounded batches from the inbound queues on a fixed
// schedule and applies them to the local record store without echoing the
// changes back through the producer.
package consumer

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attendify/syncbridge/internal/locks"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
	metricspkg "github.com/attendify/syncbridge/internal/pipeline/metrics"
	"github.com/attendify/syncbridge/internal/store"
	"github.com/attendify/syncbridge/internal/wire"
)

// Applier mutates the local store under a reentrancy lock. Replayed messages
// are no-ops: a CREATE for an existing subject and an UPDATE or DELETE for a
// missing one are acknowledged as already consistent.
type Applier struct {
	store   store.Store
	locks   *locks.Registry
	logger  loggingpkg.ServiceLogger
	metrics *metricspkg.PipelineMetrics
	tracer  trace.Tracer
}

// NewApplier constructs an applier over the given store and lock registry.
func NewApplier(st store.Store, registry *locks.Registry, log loggingpkg.ServiceLogger, met *metricspkg.PipelineMetrics) *Applier {
	return &Applier{
		store:   st,
		locks:   registry,
		logger:  log,
		metrics: met,
		tracer:  otel.Tracer("syncbridge/consumer"),
	}
}

// Apply applies one decoded change record. A nil return means the message is
// consumed: either the store reflects it or it was a recognized no-op.
func (a *Applier) Apply(ctx context.Context, rec wire.ChangeRecord) error {
	if rec.Action == wire.ActionIgnorable {
		a.metrics.Skipped("ignorable_action")
		return nil
	}
	if rec.SubjectID == "" {
		a.metrics.Skipped("missing_subject_id")
		return nil
	}

	ctx, span := a.tracer.Start(ctx, "consumer.apply", trace.WithAttributes(
		attribute.String("messaging.action", string(rec.Action)),
		attribute.String("messaging.subject_id", rec.SubjectID),
	))
	defer span.End()

	switch rec.Action {
	case wire.ActionCreate:
		return a.applyCreate(ctx, rec)
	case wire.ActionUpdate:
		return a.applyUpdate(ctx, rec)
	case wire.ActionDelete:
		return a.applyDelete(ctx, rec)
	default:
		a.metrics.Skipped("unsupported_action")
		return nil
	}
}

func (a *Applier) applyCreate(ctx context.Context, rec wire.ChangeRecord) error {
	// Redelivered CREATEs are recognized both by identity and by email, the
	// way the original consumers deduplicated.
	if email, ok := rec.Fields[wire.TagEmailAddress]; ok {
		if _, err := a.store.FindSubjectIDByEmail(ctx, email); err == nil {
			a.metrics.Skipped("duplicate_create")
			a.logger.Info("create skipped, email already known", loggingpkg.LogFields{"subject_id": rec.SubjectID})
			return nil
		}
	}

	a.locks.Acquire(rec.SubjectID)
	defer a.locks.Release(rec.SubjectID)

	err := a.store.CreateRecord(ctx, rec.SubjectID, flatten(rec))
	if errors.Is(err, store.ErrAlreadyExists) {
		a.metrics.Skipped("duplicate_create")
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply create %s: %w", rec.SubjectID, err)
	}
	a.metrics.Applied(string(wire.ActionCreate))
	a.logger.Info("record created from broker", loggingpkg.LogFields{"subject_id": rec.SubjectID})
	return nil
}

func (a *Applier) applyUpdate(ctx context.Context, rec wire.ChangeRecord) error {
	a.locks.Acquire(rec.SubjectID)
	defer a.locks.Release(rec.SubjectID)

	err := a.store.UpdateRecord(ctx, rec.SubjectID, flatten(rec))
	if errors.Is(err, store.ErrNotFound) {
		a.metrics.Skipped("missing_subject")
		a.logger.Info("update skipped, subject unknown", loggingpkg.LogFields{"subject_id": rec.SubjectID})
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply update %s: %w", rec.SubjectID, err)
	}
	a.metrics.Applied(string(wire.ActionUpdate))
	a.logger.Info("record updated from broker", loggingpkg.LogFields{"subject_id": rec.SubjectID})
	return nil
}

func (a *Applier) applyDelete(ctx context.Context, rec wire.ChangeRecord) error {
	a.locks.Acquire(rec.SubjectID)
	defer a.locks.Release(rec.SubjectID)

	err := a.store.DeleteRecord(ctx, rec.SubjectID)
	if errors.Is(err, store.ErrNotFound) {
		a.metrics.Skipped("missing_subject")
		a.logger.Info("delete skipped, subject unknown", loggingpkg.LogFields{"subject_id": rec.SubjectID})
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply delete %s: %w", rec.SubjectID, err)
	}
	a.metrics.Applied(string(wire.ActionDelete))
	a.logger.Info("record deleted from broker", loggingpkg.LogFields{"subject_id": rec.SubjectID})
	return nil
}

// flatten merges the nested group into the field map; group leaf names are
// disjoint from top-level ones by schema.
func flatten(rec wire.ChangeRecord) map[string]string {
	fields := make(map[string]string, len(rec.Fields)+len(rec.NestedGroup))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	for k, v := range rec.NestedGroup {
		fields[k] = v
	}
	return fields
}
