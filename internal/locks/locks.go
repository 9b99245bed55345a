// Package locks implements the reentrancy marker the consumer raises while
// applying broker-originated mutations. It is a signal, not a mutex: the
// producer checks it at the top of its entry points and stays silent for
// subjects whose current mutation came from the broker.
package locks

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry tracks which subjects currently hold a reentrancy lock.
type Registry struct {
	held *xsync.MapOf[string, struct{}]
}

// NewRegistry returns an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{held: xsync.NewMapOf[string, struct{}]()}
}

// Acquire marks the subject as being mutated by the consumer.
func (r *Registry) Acquire(subjectID string) {
	r.held.Store(subjectID, struct{}{})
}

// Release clears the subject's marker. It must run on every exit path of an
// apply, or the producer stays suppressed for that subject forever.
func (r *Registry) Release(subjectID string) {
	r.held.Delete(subjectID)
}

// Held reports whether the subject is currently locked.
func (r *Registry) Held(subjectID string) bool {
	_, ok := r.held.Load(subjectID)
	return ok
}
