// Package sidecar carries best-effort operational traffic: controlroom status
// logs with bounded retries, and the liveness heartbeat.
package sidecar

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/attendify/syncbridge/internal/broker"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
	"github.com/attendify/syncbridge/internal/wire"
)

// Status classifies a controlroom log line.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusInfo    Status = "info"
	StatusWarning Status = "warning"
)

// Publisher is the broker surface the sidecar needs.
type Publisher interface {
	Publish(ctx context.Context, target broker.Target, body []byte) error
}

// ControlroomLogger delivers status lines to the monitoring exchange. Delivery
// is best-effort: a bounded number of attempts with a fixed delay, then give
// up with a local log line. Send never raises to its caller.
type ControlroomLogger struct {
	publisher   Publisher
	serviceName string
	maxTries    uint
	delay       time.Duration
	logger      loggingpkg.ServiceLogger
	now         func() time.Time
}

// NewControlroomLogger builds the sidecar. maxTries and delay default to
// 3 attempts and 1 second when zero.
func NewControlroomLogger(pub Publisher, serviceName string, maxTries uint, delay time.Duration, log loggingpkg.ServiceLogger) *ControlroomLogger {
	if maxTries == 0 {
		maxTries = 3
	}
	if delay == 0 {
		delay = time.Second
	}
	return &ControlroomLogger{
		publisher:   pub,
		serviceName: serviceName,
		maxTries:    maxTries,
		delay:       delay,
		logger:      log,
		now:         time.Now,
	}
}

// Send publishes one status line. Invalid statuses are logged and dropped.
func (c *ControlroomLogger) Send(ctx context.Context, status Status, message string) {
	switch status {
	case StatusSuccess, StatusError, StatusInfo, StatusWarning:
	default:
		c.logger.Error("invalid controlroom log status", nil, loggingpkg.LogFields{"status": string(status)})
		return
	}

	timestamp := c.now().UTC().Format(wire.TimeLayout)
	body, err := wire.Encode(wire.KindLog, wire.ChangeRecord{
		Fields: map[string]string{
			wire.TagServiceName: c.serviceName,
			wire.TagStatus:      string(status),
			wire.TagMessage:     fmt.Sprintf("[%s] %s", timestamp, message),
		},
	})
	if err != nil {
		c.logger.Error("encoding controlroom log", err, nil)
		return
	}

	operation := func() (struct{}, error) {
		return struct{}{}, c.publisher.Publish(ctx, broker.ControlroomLogTarget, body)
	}
	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		c.logger.Error("controlroom log delivery gave up", err, loggingpkg.LogFields{
			"status":    string(status),
			"max_tries": c.maxTries,
		})
		return
	}
	c.logger.Debug("controlroom log sent", loggingpkg.LogFields{"status": string(status)})
}
