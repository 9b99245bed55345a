// Package producer watches local record mutations and publishes one change
// record per mutation to every configured downstream target, unless the
// mutation originated from the consumer.
package producer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attendify/syncbridge/internal/broker"
	"github.com/attendify/syncbridge/internal/locks"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
	metricspkg "github.com/attendify/syncbridge/internal/pipeline/metrics"
	"github.com/attendify/syncbridge/internal/wire"
)

// Publisher is the broker surface the producer needs.
type Publisher interface {
	Publish(ctx context.Context, target broker.Target, body []byte) error
}

// trackedFields is the allowlist of user fields whose changes are published.
// Fields outside this set are ignored even when they differ.
var trackedFields = func() map[string]struct{} {
	set := make(map[string]struct{}, len(wire.UserFields)+len(wire.BusinessFields))
	for _, tag := range wire.UserFields {
		set[tag] = struct{}{}
	}
	for _, tag := range wire.BusinessFields {
		set[tag] = struct{}{}
	}
	return set
}()

// Tracked reports whether changes to the field are published.
func Tracked(field string) bool {
	_, ok := trackedFields[field]
	return ok
}

// Producer detects field-level changes and fans them out to the broker.
// Publish failures are logged and counted, never returned: a broker outage
// must not abort the local mutation that triggered the publish.
type Producer struct {
	publisher Publisher
	locks     *locks.Registry
	staging   *stagingCache
	logger    loggingpkg.ServiceLogger
	metrics   *metricspkg.PipelineMetrics
	tracer    trace.Tracer

	now func() time.Time
}

// New constructs a producer. stagingTTL bounds how long piecemeal captures
// stay valid.
func New(pub Publisher, registry *locks.Registry, stagingTTL time.Duration, log loggingpkg.ServiceLogger, met *metricspkg.PipelineMetrics) *Producer {
	return &Producer{
		publisher: pub,
		locks:     registry,
		staging:   newStagingCache(stagingTTL),
		logger:    log,
		metrics:   met,
		tracer:    otel.Tracer("syncbridge/producer"),
		now:       time.Now,
	}
}

// OnProfileMutated compares two snapshots of the same subject and publishes
// the minimal tracked-field diff as an UPDATE. Identical snapshots produce no
// message. Suppressed entirely while the subject holds a reentrancy lock.
func (p *Producer) OnProfileMutated(ctx context.Context, subjectID string, before, after map[string]string) {
	if subjectID == "" {
		return
	}
	if p.locks.Held(subjectID) {
		p.logger.Debug("producer suppressed by reentrancy lock", loggingpkg.LogFields{"subject_id": subjectID})
		return
	}

	changed := map[string]string{}
	for field := range trackedFields {
		if before[field] != after[field] {
			changed[field] = after[field]
		}
	}
	if len(changed) == 0 {
		return
	}

	rec := p.record(wire.ActionUpdate, subjectID, changed)
	p.fanOut(ctx, wire.KindUserMessage, rec, broker.UserUpdateTargets)
}

// OnSubjectCreated publishes a CREATE carrying the full field set.
func (p *Producer) OnSubjectCreated(ctx context.Context, subjectID string, fields map[string]string) {
	if subjectID == "" {
		return
	}
	if p.locks.Held(subjectID) {
		p.logger.Debug("producer suppressed by reentrancy lock", loggingpkg.LogFields{"subject_id": subjectID})
		return
	}

	tracked := map[string]string{}
	for field, value := range fields {
		if Tracked(field) {
			tracked[field] = value
		}
	}
	rec := p.record(wire.ActionCreate, subjectID, tracked)
	p.fanOut(ctx, wire.KindUserMessage, rec, broker.UserCreateTargets)
}

// OnSubjectDeleted publishes a DELETE carrying only identity and timestamp.
func (p *Producer) OnSubjectDeleted(ctx context.Context, subjectID string) {
	if subjectID == "" {
		return
	}
	if p.locks.Held(subjectID) {
		p.logger.Debug("producer suppressed by reentrancy lock", loggingpkg.LogFields{"subject_id": subjectID})
		return
	}

	rec := wire.ChangeRecord{
		Action:    wire.ActionDelete,
		SubjectID: subjectID,
		Timestamp: p.now().UTC(),
	}
	p.fanOut(ctx, wire.KindUserMessage, rec, broker.UserDeleteTargets)
}

// StageField captures the pre-mutation value of a tracked field for mutations
// that arrive one attribute at a time. Untracked fields are not staged.
func (p *Producer) StageField(subjectID, field, value string) {
	if subjectID == "" || !Tracked(field) {
		return
	}
	p.staging.Stage(subjectID, field, value)
}

// OnFieldMutated compares the post-mutation value against the staged capture
// and publishes a single-field UPDATE when they differ. A missing or expired
// capture counts as an empty previous value, so first-time writes publish.
func (p *Producer) OnFieldMutated(ctx context.Context, subjectID, field, value string) {
	if subjectID == "" || !Tracked(field) {
		return
	}
	staged, _ := p.staging.Take(subjectID, field)
	p.OnProfileMutated(ctx, subjectID,
		map[string]string{field: staged},
		map[string]string{field: value})
}

func (p *Producer) record(action wire.Action, subjectID string, fields map[string]string) wire.ChangeRecord {
	rec := wire.ChangeRecord{
		Action:    action,
		SubjectID: subjectID,
		Timestamp: p.now().UTC(),
		Fields:    map[string]string{},
	}
	for field, value := range fields {
		if wire.IsBusinessField(field) {
			if rec.NestedGroup == nil {
				rec.NestedGroup = map[string]string{}
			}
			rec.NestedGroup[field] = value
			continue
		}
		rec.Fields[field] = value
	}
	return rec
}

// fanOut encodes once and publishes one copy per target. One target's failure
// does not block the others and nothing is rolled back.
func (p *Producer) fanOut(ctx context.Context, kind wire.Kind, rec wire.ChangeRecord, targets []broker.Target) {
	body, err := wire.Encode(kind, rec)
	if err != nil {
		p.logger.Error("encoding change record", err, loggingpkg.LogFields{
			"subject_id": rec.SubjectID,
			"action":     string(rec.Action),
		})
		return
	}

	ctx, span := p.tracer.Start(ctx, "producer.publish", trace.WithAttributes(
		attribute.String("messaging.action", string(rec.Action)),
		attribute.String("messaging.subject_id", rec.SubjectID),
	))
	defer span.End()

	for _, target := range targets {
		if err := p.publisher.Publish(ctx, target, body); err != nil {
			p.metrics.PublishFailed(target.Exchange, target.RoutingKey)
			p.logger.Error("publishing change record", err, loggingpkg.LogFields{
				"exchange":    target.Exchange,
				"routing_key": target.RoutingKey,
				"subject_id":  rec.SubjectID,
			})
			continue
		}
		p.metrics.Published(target.Exchange, target.RoutingKey)
		p.logger.Info("change record published", loggingpkg.LogFields{
			"exchange":    target.Exchange,
			"routing_key": target.RoutingKey,
			"action":      string(rec.Action),
			"subject_id":  rec.SubjectID,
		})
	}
}
