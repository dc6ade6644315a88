package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndresMRE/chat-client/broker"
	"github.com/AndresMRE/chat-client/session"
	"github.com/AndresMRE/chat-client/store"
)

func newTestClient(t *testing.T, username string) (*Client, *broker.Mock, *store.Mem) {
	t.Helper()

	b := broker.NewMock()
	kv := store.NewMem()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": username}).
		SignedString([]byte("test-key"))
	require.NoError(t, err)

	// answer the login exchange so the session manager reaches
	// Authenticated through its normal path.
	require.NoError(t, b.Subscribe(broker.AuthLogin, func(_ string, payload []byte) {
		var req struct {
			Username      string `json:"username"`
			CorrelationID string `json:"correlationId"`
		}
		require.NoError(t, json.Unmarshal(payload, &req))
		reply, _ := json.Marshal(&session.Reply{
			Type:          "login",
			Status:        "success",
			CorrelationID: req.CorrelationID,
			Token:         token,
		})
		b.Deliver(broker.AuthResponse(req.Username), reply)
	}))

	sess := session.NewManager(b, kv)
	require.NoError(t, sess.Login(context.Background(), username, "pw"))

	c, err := NewClient(b, sess, kv)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(c.Stop)
	return c, b, kv
}

func deliver(b *broker.Mock, topic string, msg map[string]any) {
	payload, _ := json.Marshal(msg)
	b.Deliver(topic, payload)
}

func TestDirectMessageAppended(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")

	deliver(b, broker.P2PInbox("bob"), map[string]any{
		"type": "direct", "from": "alice", "content": "hi",
		"hash": Checksum("hi"), "correlationId": "c2",
	})

	convs := c.Conversations()
	require.Len(t, convs.List(), 1)
	assert.Equal(t, store.Conversation{ID: "alice", Name: "alice"}, convs.List()[0])
	assert.Equal(t, []store.Message{{From: "alice", Content: "hi"}}, convs.History("alice"))
	assert.Equal(t, 1, convs.Unread("alice"))
}

func TestTamperedMessageDropped(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")

	deliver(b, broker.P2PInbox("bob"), map[string]any{
		"type": "direct", "from": "alice", "content": "hi",
		"hash": Checksum("something else"), "correlationId": "c2",
	})

	assert.Empty(t, c.Conversations().History("alice"))
	assert.Empty(t, c.Conversations().List())
}

func TestDirectWithoutHashAdmitted(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")

	deliver(b, broker.P2PInbox("bob"), map[string]any{
		"type": "direct", "from": "alice", "content": "hi", "correlationId": "c2",
	})
	assert.Len(t, c.Conversations().History("alice"), 1)
}

func TestDuplicateDeliveryDropped(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")

	msg := map[string]any{
		"type": "direct", "from": "alice", "content": "hi",
		"hash": Checksum("hi"), "correlationId": "c2",
	}
	deliver(b, broker.P2PInbox("bob"), msg)
	deliver(b, broker.P2PInbox("bob"), msg)

	assert.Len(t, c.Conversations().History("alice"), 1)
	assert.Equal(t, 1, c.Conversations().Unread("alice"))
}

func TestMessagesWithoutCorrelationIDNotDeduped(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")

	msg := map[string]any{"type": "direct", "from": "alice", "content": "hi"}
	deliver(b, broker.P2PInbox("bob"), msg)
	deliver(b, broker.P2PInbox("bob"), msg)

	assert.Len(t, c.Conversations().History("alice"), 2)
}

func TestGroupMessage(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")

	deliver(b, "/message/group/g1", map[string]any{
		"type": "group", "groupId": "g1", "groupName": "Team",
		"sender": "carol", "content": "hello", "correlationId": "c3",
	})

	convs := c.Conversations()
	require.Len(t, convs.List(), 1)
	assert.Equal(t, store.Conversation{ID: "g1", Name: "Team"}, convs.List()[0])
	assert.Equal(t, []store.Message{{From: "carol", Content: "hello"}}, convs.History("g1"))
}

func TestUnreadSkipsSelectedConversation(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")
	c.Conversations().Ensure("alice", "")
	c.Conversations().Select("alice")

	deliver(b, broker.P2PInbox("bob"), map[string]any{
		"type": "direct", "from": "alice", "content": "hi", "correlationId": "c1",
	})
	deliver(b, broker.P2PInbox("bob"), map[string]any{
		"type": "direct", "from": "carol", "content": "yo", "correlationId": "c2",
	})

	assert.Equal(t, 0, c.Conversations().Unread("alice"))
	assert.Equal(t, 1, c.Conversations().Unread("carol"))
}

func TestServerErrorSurfaced(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")

	var got string
	c.OnError(func(message string) { got = message })

	deliver(b, broker.P2PInbox("bob"), map[string]any{
		"status": "error", "message": "recipient offline", "correlationId": "c9",
	})

	assert.Equal(t, "recipient offline", got)
	assert.Empty(t, c.Conversations().List())

	// the error's correlation id still participates in dedup.
	var again int
	c.OnError(func(string) { again++ })
	deliver(b, broker.P2PInbox("bob"), map[string]any{
		"status": "error", "message": "recipient offline", "correlationId": "c9",
	})
	assert.Zero(t, again)
}

func TestMalformedAndUnroutableDropped(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")

	b.Deliver(broker.P2PInbox("bob"), []byte("{not json"))
	deliver(b, broker.P2PInbox("bob"), map[string]any{"type": "presence", "from": "alice"})

	assert.Empty(t, c.Conversations().List())
}

func TestSendPublishesAndEchoes(t *testing.T) {
	c, b, _ := newTestClient(t, "alice")
	c.Conversations().Ensure("bob", "")
	c.Conversations().Select("bob")

	require.NoError(t, c.Send("hi"))

	published := b.Published[broker.P2PSend]
	require.Len(t, published, 1)

	var out struct {
		Token         string `json:"token"`
		ToUsername    string `json:"toUsername"`
		Content       string `json:"content"`
		Hash          string `json:"hash"`
		CorrelationID string `json:"correlationId"`
	}
	require.NoError(t, json.Unmarshal(published[0], &out))
	assert.Equal(t, "bob", out.ToUsername)
	assert.Equal(t, "hi", out.Content)
	assert.Equal(t, Checksum("hi"), out.Hash)
	assert.NotEmpty(t, out.Token)
	assert.NotEmpty(t, out.CorrelationID)

	assert.Equal(t, []store.Message{{From: "alice", Content: "hi"}}, c.Conversations().History("bob"))
}

func TestSendRequiresSelection(t *testing.T) {
	c, _, _ := newTestClient(t, "alice")
	assert.Error(t, c.Send("hi"))
	assert.Error(t, c.Send(""))
}

func TestStartStopIdempotent(t *testing.T) {
	c, b, _ := newTestClient(t, "bob")

	require.NoError(t, c.Start()) // second Start is a no-op
	assert.True(t, b.Subscribed(broker.P2PInbox("bob")))
	assert.True(t, b.Subscribed(broker.GroupWildcard))

	c.Stop()
	c.Stop() // double teardown is a no-op
	assert.False(t, b.Subscribed(broker.P2PInbox("bob")))
	assert.False(t, b.Subscribed(broker.GroupWildcard))

	deliver(b, broker.P2PInbox("bob"), map[string]any{
		"type": "direct", "from": "alice", "content": "late", "correlationId": "c5",
	})
	assert.Empty(t, c.Conversations().History("alice"))
}

func TestInboundStateSurvivesReload(t *testing.T) {
	c, b, kv := newTestClient(t, "bob")

	deliver(b, broker.P2PInbox("bob"), map[string]any{
		"type": "direct", "from": "alice", "content": "hi",
		"hash": Checksum("hi"), "correlationId": "c2",
	})
	c.Stop()

	restored := store.NewConversations(kv, "bob")
	restored.Restore()
	assert.Equal(t, c.Conversations().List(), restored.List())
	assert.Equal(t, c.Conversations().History("alice"), restored.History("alice"))
	assert.Equal(t, 1, restored.Unread("alice"))
}

func TestClientRequiresAuthenticatedSession(t *testing.T) {
	b := broker.NewMock()
	kv := store.NewMem()
	_, err := NewClient(b, session.NewManager(b, kv), kv)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}
