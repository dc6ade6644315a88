package chat

import (
	"crypto/md5"
	"encoding/hex"
)

// Checksum is the MD5 hex digest of a message body, matching the digest
// the service and peers attach as `hash`.
func Checksum(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// dedupCapacity bounds the seen-correlation-id set. At-least-once
// redelivery happens close to the original delivery, so a bounded recency
// window is enough; a duplicate older than the window is re-admitted.
const dedupCapacity = 4096

// seenSet is a capacity-bounded FIFO set of correlation ids.
type seenSet struct {
	set   map[string]struct{}
	order []string
	cap   int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		set: make(map[string]struct{}, capacity),
		cap: capacity,
	}
}

// admit records the id and reports whether it was seen for the first
// time. Messages without a correlation id are always admitted.
func (s *seenSet) admit(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := s.set[id]; ok {
		return false
	}
	if len(s.order) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.set, oldest)
	}
	s.set[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}
