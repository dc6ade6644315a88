package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/AndresMRE/chat-client/broker"
	"github.com/AndresMRE/chat-client/store"
)

// State of the session state machine.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

// ErrNotAuthenticated is returned by operations requiring a session.
var ErrNotAuthenticated = fmt.Errorf("session: not authenticated")

type authRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	CorrelationID string `json:"correlationId"`
}

// Manager owns the authenticated identity and performs login/register as
// correlated request/response exchanges over the broker. The broker handle
// and KV are injected; the manager holds at most one token.
type Manager struct {
	mu sync.Mutex

	broker  broker.Broker
	kv      store.KV
	tracker *Tracker

	state    State
	token    string
	username string
}

func NewManager(b broker.Broker, kv store.KV) *Manager {
	return &Manager{
		broker:  b,
		kv:      kv,
		tracker: NewTracker(),
	}
}

// Login authenticates against the service. On success the returned token
// is held in memory and persisted; on failure the session stays
// unauthenticated and the server's reason is returned.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	reply, err := m.exchange(ctx, broker.AuthLogin, KindLogin, username, password)
	if err != nil {
		m.setState(Unauthenticated)
		return err
	}

	subject, err := SubjectFromToken(reply.Token)
	if err != nil {
		glog.Errorf("login: %v, falling back to login name", err)
		subject = username
	}

	m.mu.Lock()
	m.token = reply.Token
	m.username = subject
	m.state = Authenticated
	m.mu.Unlock()

	if err := m.kv.Set(store.TokenKey, reply.Token); err != nil {
		glog.Errorf("login: persist token: %v", err)
	}

	glog.Infof("login: authenticated as %s", subject)
	return nil
}

// Register creates an account. Session state is not mutated on success;
// the caller still has to log in.
func (m *Manager) Register(ctx context.Context, username, password string) error {
	_, err := m.exchange(ctx, broker.AuthRegister, KindRegister, username, password)
	return err
}

// exchange runs one correlated request/response round trip: subscribe the
// per-user reply topic, publish the request with a fresh correlation id,
// await the matching reply. The reply topic is unsubscribed once no
// request is pending on it.
func (m *Manager) exchange(ctx context.Context, reqTopic string, kind Kind, username, password string) (*Reply, error) {
	id := NewID()
	respTopic := broker.AuthResponse(username)

	ch, err := m.tracker.Register(respTopic, kind, id)
	if err != nil {
		return nil, err
	}

	if err := m.broker.Subscribe(respTopic, func(topic string, payload []byte) {
		if m.tracker.ResolveIncoming(topic, payload) == 0 {
			if err := m.broker.Unsubscribe(topic); err != nil {
				glog.Errorf("session: unsubscribe %s: %v", topic, err)
			}
		}
	}); err != nil {
		m.tracker.Abandon(respTopic, kind, id)
		return nil, err
	}

	if kind == KindLogin {
		m.setState(Authenticating)
	}

	req, _ := json.Marshal(&authRequest{
		Username:      username,
		Password:      password,
		CorrelationID: id,
	})
	if err := m.broker.Publish(reqTopic, req); err != nil {
		m.tracker.Abandon(respTopic, kind, id)
		return nil, err
	}

	reply, err := Await(ctx, ch)
	if err != nil {
		// Either a server rejection (already removed from the tracker) or
		// an abandoned wait; Abandon is a no-op for the former.
		m.tracker.Abandon(respTopic, kind, id)
		if m.tracker.remaining(respTopic) == 0 {
			_ = m.broker.Unsubscribe(respTopic)
		}
		return nil, err
	}
	return reply, nil
}

// Restore adopts a persisted token without re-validating it against the
// service; an expired token surfaces later as a protocol error on the
// first protected operation.
func (m *Manager) Restore() bool {
	token, ok := m.kv.Get(store.TokenKey)
	if !ok {
		return false
	}
	subject, err := SubjectFromToken(token)
	if err != nil {
		glog.Errorf("restore: dropping unreadable token: %v", err)
		_ = m.kv.Delete(store.TokenKey)
		return false
	}

	m.mu.Lock()
	m.token = token
	m.username = subject
	m.state = Authenticated
	m.mu.Unlock()

	glog.Infof("restore: session for %s", subject)
	return true
}

// Logout clears the token and every durable key scoped to the outgoing
// identity, together, so nothing leaks into the next session.
func (m *Manager) Logout() {
	m.mu.Lock()
	username := m.username
	m.token = ""
	m.username = ""
	m.state = Unauthenticated
	m.mu.Unlock()

	keys := []string{store.TokenKey}
	if username != "" {
		keys = append(keys, store.UserKeys(username)...)
	}
	if err := m.kv.Delete(keys...); err != nil {
		glog.Errorf("logout: clear storage: %v", err)
	}
	glog.Infof("logout: cleared session for %q", username)
}

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manager) Username() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.username
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
