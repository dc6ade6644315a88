package broker

import (
	"strings"
	"sync"
)

// Mock is an in-memory Broker for tests and offline runs. Published
// messages are delivered synchronously to every matching subscription,
// so a test observes all side effects once Publish returns.
type Mock struct {
	sync.Mutex

	connected bool
	handlers  map[string]Handler

	// every payload published, by topic, in publish order.
	Published map[string][][]byte
}

func NewMock() *Mock {
	return &Mock{
		handlers:  make(map[string]Handler),
		Published: make(map[string][][]byte),
	}
}

func (b *Mock) Connect() error {
	b.Lock()
	b.connected = true
	b.Unlock()
	return nil
}

func (b *Mock) Disconnect() {
	b.Lock()
	b.connected = false
	b.Unlock()
}

func (b *Mock) Subscribe(topic string, h Handler) error {
	b.Lock()
	b.handlers[topic] = h
	b.Unlock()
	return nil
}

func (b *Mock) Unsubscribe(topics ...string) error {
	b.Lock()
	for _, topic := range topics {
		delete(b.handlers, topic)
	}
	b.Unlock()
	return nil
}

func (b *Mock) Publish(topic string, payload []byte) error {
	b.Lock()
	b.Published[topic] = append(b.Published[topic], payload)
	var matched []Handler
	for filter, h := range b.handlers {
		if topicMatch(filter, topic) {
			matched = append(matched, h)
		}
	}
	b.Unlock()

	for _, h := range matched {
		h(topic, payload)
	}
	return nil
}

// Deliver injects a message as if the broker produced it, without
// recording it as a publish from this client.
func (b *Mock) Deliver(topic string, payload []byte) {
	b.Lock()
	var matched []Handler
	for filter, h := range b.handlers {
		if topicMatch(filter, topic) {
			matched = append(matched, h)
		}
	}
	b.Unlock()

	for _, h := range matched {
		h(topic, payload)
	}
}

// Subscribed reports whether the exact topic filter has a live handler.
func (b *Mock) Subscribed(topic string) bool {
	b.Lock()
	defer b.Unlock()
	_, ok := b.handlers[topic]
	return ok
}

// topicMatch matches a topic against a filter with single-level `+`
// wildcards, e.g. filter "/message/group/+" matches "/message/group/g1".
func topicMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	if len(fs) != len(ts) {
		return false
	}
	for i, f := range fs {
		if f == "+" {
			continue
		}
		if f != ts[i] {
			return false
		}
	}
	return true
}
