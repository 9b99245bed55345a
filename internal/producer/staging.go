package producer

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// keySep cannot appear in subject IDs or field names.
const keySep = "\x1f"

// stagingCache holds pre-mutation field values for changes that arrive one
// attribute at a time. Entries expire after the configured TTL so a stale
// capture never leaks into an unrelated later publish.
type stagingCache struct {
	cache *expirable.LRU[string, string]
}

func newStagingCache(ttl time.Duration) *stagingCache {
	return &stagingCache{cache: expirable.NewLRU[string, string](0, nil, ttl)}
}

func stagingKey(subjectID, field string) string {
	return subjectID + keySep + field
}

// Stage records the current (pre-mutation) value of a tracked field.
func (s *stagingCache) Stage(subjectID, field, value string) {
	s.cache.Add(stagingKey(subjectID, field), value)
}

// Take removes and returns the staged value for the subject's field.
func (s *stagingCache) Take(subjectID, field string) (string, bool) {
	key := stagingKey(subjectID, field)
	value, ok := s.cache.Get(key)
	if ok {
		s.cache.Remove(key)
	}
	return value, ok
}
