package errors

import sterrors "errors"

// Decode-time failures. The consumer treats all of these as poison: the
// message is acknowledged, logged, and dropped so it cannot wedge the queue.
var (
	ErrMalformedPayload   = sterrors.New("syncbridge: payload is not a well-formed document")
	ErrInvalidTimestamp   = sterrors.New("syncbridge: timestamp field could not be parsed")
	ErrUnknownMessageKind = sterrors.New("syncbridge: unrecognized message root element")
)

var (
	ErrPublisherRequired  = sterrors.New("syncbridge: publisher is required")
	ErrSubscriberRequired = sterrors.New("syncbridge: subscriber is required")
	ErrStoreRequired      = sterrors.New("syncbridge: record store is required")
	ErrLoggerRequired     = sterrors.New("syncbridge: logger is required")
	ErrSubjectIDRequired  = sterrors.New("syncbridge: subject id is required")
	ErrCalendarRequired   = sterrors.New("syncbridge: calendar source is required")
)
