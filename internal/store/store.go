// Package store is the local record store the pipeline synchronizes: subjects
// with string-keyed fields, plus event and session registration rows.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record exists for the subject.
	ErrNotFound = errors.New("syncbridge: record not found")
	// ErrAlreadyExists is returned when creating a record whose identity is
	// already taken. Callers replaying a CREATE treat it as a successful no-op.
	ErrAlreadyExists = errors.New("syncbridge: record already exists")
)

// Record is a locally stored subject and its current field values.
type Record struct {
	SubjectID string
	Fields    map[string]string
}

// Store is the CRUD collaborator the pipeline mutates. Implementations must
// be safe for use from the producer's mutation path and the consumer's
// applier; the two never run concurrently for the same invocation, but the
// host may publish registrations while a drain is in flight.
type Store interface {
	FindBySubjectID(ctx context.Context, subjectID string) (*Record, error)
	CreateRecord(ctx context.Context, subjectID string, fields map[string]string) error
	UpdateRecord(ctx context.Context, subjectID string, fields map[string]string) error
	DeleteRecord(ctx context.Context, subjectID string) error

	// FindSubjectIDByEmail resolves a subject by its EmailAddress field.
	FindSubjectIDByEmail(ctx context.Context, email string) (string, error)

	ExistsRegistration(ctx context.Context, userID, eventID string) (bool, error)
	InsertRegistration(ctx context.Context, userID, eventID string) error
	ExistsSessionRegistration(ctx context.Context, userID, eventID, sessionID string) (bool, error)
	InsertSessionRegistration(ctx context.Context, userID, eventID, sessionID string) error

	Close() error
}
