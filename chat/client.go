package chat

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/AndresMRE/chat-client/broker"
	"github.com/AndresMRE/chat-client/session"
	"github.com/AndresMRE/chat-client/store"
)

// outbound is the wire shape of a direct message publish.
type outbound struct {
	Token         string `json:"token,omitempty"`
	ToUsername    string `json:"toUsername"`
	Content       string `json:"content"`
	Hash          string `json:"hash"`
	CorrelationID string `json:"correlationId"`
}

// Client owns one authenticated messaging session: it derives and manages
// the topic subscriptions for the identity, runs the inbound pipeline
// (decode, dedup, route, integrity check, store) and publishes outgoing
// direct messages.
//
// The broker delivers messages on its own goroutines; the mutex gives the
// pipeline the same effectively-serial execution the event loop of a
// single-threaded client would have.
type Client struct {
	mu sync.Mutex

	broker broker.Broker
	sess   *session.Manager
	convs  *store.Conversations
	seen   *seenSet

	topics  []string
	started bool

	onError func(message string)
}

// NewClient builds the messaging client for the manager's current
// identity. The session must already be authenticated.
func NewClient(b broker.Broker, sess *session.Manager, kv store.KV) (*Client, error) {
	username := sess.Username()
	if username == "" {
		return nil, session.ErrNotAuthenticated
	}

	return &Client{
		broker: b,
		sess:   sess,
		convs:  store.NewConversations(kv, username),
		seen:   newSeenSet(dedupCapacity),
		topics: []string{broker.P2PInbox(username), broker.GroupWildcard},
	}, nil
}

// OnError registers the callback for server error payloads. Must be set
// before Start.
func (c *Client) OnError(f func(message string)) {
	c.onError = f
}

// Conversations exposes the per-identity conversation state.
func (c *Client) Conversations() *store.Conversations {
	return c.convs
}

// Start restores persisted state and subscribes the identity's topic set.
// Calling Start on a started client is a no-op.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	c.convs.Restore()

	for i, topic := range c.topics {
		if err := c.broker.Subscribe(topic, c.handleMessage); err != nil {
			_ = c.broker.Unsubscribe(c.topics[:i]...)
			return fmt.Errorf("chat: start: %v", err)
		}
	}
	c.started = true
	glog.Infof("chat: subscribed %v", c.topics)
	return nil
}

// Stop unsubscribes the topic set and detaches the handler. Symmetric
// with Start; a second Stop is a no-op.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	if err := c.broker.Unsubscribe(c.topics...); err != nil {
		glog.Errorf("chat: stop: %v", err)
	}
	c.started = false
	glog.Infof("chat: unsubscribed %v", c.topics)
}

// Send publishes a direct message to the selected conversation's peer and
// echoes it into the local history.
func (c *Client) Send(content string) error {
	if content == "" {
		return fmt.Errorf("chat: empty message")
	}
	to := c.convs.Selected()
	if to == "" {
		return fmt.Errorf("chat: no conversation selected")
	}

	payload, _ := json.Marshal(&outbound{
		Token:         c.sess.Token(),
		ToUsername:    to,
		Content:       content,
		Hash:          Checksum(content),
		CorrelationID: session.NewID(),
	})
	if err := c.broker.Publish(broker.P2PSend, payload); err != nil {
		return err
	}

	c.convs.Append(to, store.Message{From: c.sess.Username(), Content: content})
	return nil
}

// handleMessage is the single inbound handler attached to every
// subscribed topic.
func (c *Client) handleMessage(topic string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inboundTotal.Inc()

	var msg inbound
	if err := json.Unmarshal(payload, &msg); err != nil {
		decodeErrors.Inc()
		glog.Errorf("chat: undecodable payload on %s: %v", topic, err)
		return
	}

	if !c.seen.admit(msg.CorrelationID) {
		duplicatesDropped.Inc()
		glog.V(5).Infof("chat: duplicate corr=%s on %s", msg.CorrelationID, topic)
		return
	}

	// Server error payloads surface as session-level errors and touch no
	// conversation.
	if msg.Status == statusError {
		serverErrors.Inc()
		glog.Errorf("chat: server error on %s: %s", topic, msg.Message)
		if c.onError != nil {
			c.onError(msg.Message)
		}
		return
	}

	r, ok := route(&msg)
	if !ok {
		return
	}

	if r.direct && r.hash != "" {
		if local := Checksum(r.content); local != r.hash {
			integrityDropped.Inc()
			glog.Errorf("chat: checksum mismatch from %s: expected %s got %s", r.sender, r.hash, local)
			return
		}
	}

	c.convs.Ensure(r.convID, r.name)
	c.convs.Append(r.convID, store.Message{From: r.sender, Content: r.content})
	c.convs.BumpUnread(r.convID)
}
