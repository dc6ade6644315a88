package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/pborman/uuid"
)

// Kind discriminates replies sharing a response topic.
type Kind string

const (
	KindLogin    Kind = "login"
	KindRegister Kind = "register"
)

const (
	statusSuccess = "success"
)

// Reply is a successful auth service response.
type Reply struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlationId"`
	Token         string `json:"token,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Result carries the outcome of a pending request: exactly one of Reply
// and Err is set.
type Result struct {
	Reply *Reply
	Err   error
}

// ProtocolError is a server-side rejection carrying the server's message.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// ErrRequestPending is returned when a request of the same kind is already
// in flight on the same response topic. Callers must serialize such calls.
var ErrRequestPending = fmt.Errorf("session: request already pending")

type pendingKey struct {
	topic string
	kind  Kind
	id    string
}

// Tracker matches asynchronous replies to pending requests by
// (topic, kind, correlation id).
type Tracker struct {
	sync.Mutex
	pending map[pendingKey]chan Result
}

func NewTracker() *Tracker {
	return &Tracker{
		pending: make(map[pendingKey]chan Result),
	}
}

// NewID returns a fresh correlation id.
func NewID() string {
	return strings.ReplaceAll(uuid.New(), "-", "")
}

// Register records a pending request and returns the channel its result
// will be delivered on. A second registration for the same (topic, kind)
// while one is in flight is rejected with ErrRequestPending.
func (t *Tracker) Register(topic string, kind Kind, id string) (<-chan Result, error) {
	t.Lock()
	defer t.Unlock()

	for k := range t.pending {
		if k.topic == topic && k.kind == kind {
			return nil, ErrRequestPending
		}
	}

	ch := make(chan Result, 1)
	t.pending[pendingKey{topic: topic, kind: kind, id: id}] = ch
	return ch, nil
}

// Abandon removes a pending request whose caller gave up waiting.
func (t *Tracker) Abandon(topic string, kind Kind, id string) {
	t.Lock()
	delete(t.pending, pendingKey{topic: topic, kind: kind, id: id})
	t.Unlock()
}

// ResolveIncoming matches a payload delivered on topic against pending
// requests. A payload that matches no pending entry is ignored: the topic
// may carry traffic for other in-flight requests. Returns the number of
// pendings still waiting on the topic, so the caller can unsubscribe once
// it drops to zero.
func (t *Tracker) ResolveIncoming(topic string, payload []byte) int {
	var reply Reply
	if err := json.Unmarshal(payload, &reply); err != nil {
		glog.Errorf("session: bad payload on %s: %v", topic, err)
		return t.remaining(topic)
	}

	key := pendingKey{topic: topic, kind: Kind(reply.Type), id: reply.CorrelationID}

	t.Lock()
	ch, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
	}
	remaining := 0
	for k := range t.pending {
		if k.topic == topic {
			remaining++
		}
	}
	t.Unlock()

	if !ok {
		glog.V(5).Infof("session: unmatched reply on %s, type=%s corr=%s", topic, reply.Type, reply.CorrelationID)
		return remaining
	}

	if reply.Status == statusSuccess {
		ch <- Result{Reply: &reply}
	} else {
		ch <- Result{Err: &ProtocolError{Message: reply.Message}}
	}
	return remaining
}

func (t *Tracker) remaining(topic string) int {
	t.Lock()
	defer t.Unlock()
	n := 0
	for k := range t.pending {
		if k.topic == topic {
			n++
		}
	}
	return n
}

// Await blocks until the result arrives or ctx expires.
func Await(ctx context.Context, ch <-chan Result) (*Reply, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Reply, r.Err
	}
}
