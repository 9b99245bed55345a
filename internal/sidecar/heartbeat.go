package sidecar

import (
	"context"
	"time"

	"github.com/attendify/syncbridge/internal/broker"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
	"github.com/attendify/syncbridge/internal/wire"
)

// Heartbeat periodically announces liveness on the monitoring exchange.
type Heartbeat struct {
	publisher   Publisher
	serviceName string
	interval    time.Duration
	logger      loggingpkg.ServiceLogger
}

// NewHeartbeat builds the heartbeat emitter. interval defaults to 1 second
// when zero.
func NewHeartbeat(pub Publisher, serviceName string, interval time.Duration, log loggingpkg.ServiceLogger) *Heartbeat {
	if interval == 0 {
		interval = time.Second
	}
	return &Heartbeat{
		publisher:   pub,
		serviceName: serviceName,
		interval:    interval,
		logger:      log,
	}
}

// Run emits one ping per interval until ctx is cancelled. Publish failures
// are logged and the loop keeps going; a missed beat is the signal the
// monitor is built to notice.
func (h *Heartbeat) Run(ctx context.Context) {
	body, err := wire.Encode(wire.KindHeartbeat, wire.ChangeRecord{
		Fields: map[string]string{wire.TagServiceName: h.serviceName},
	})
	if err != nil {
		h.logger.Error("encoding heartbeat", err, nil)
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.publisher.Publish(ctx, broker.HeartbeatTarget, body); err != nil {
				h.logger.Error("heartbeat publish failed", err, nil)
			}
		}
	}
}
