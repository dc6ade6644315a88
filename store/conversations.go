package store

import (
	"encoding/json"
	"sync"

	"github.com/golang/glog"
)

// Message is one entry in a conversation history. Histories are
// append-only; insertion order is display order.
type Message struct {
	From    string `json:"from"`
	Content string `json:"content"`
}

// Conversation identifies a thread: a peer username for direct chats, a
// group id for group chats. Name is the display label, defaulting to ID.
type Conversation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Conversations holds one identity's conversation list, histories and
// unread counters, written through to the KV on every mutation.
type Conversations struct {
	sync.RWMutex

	kv       KV
	username string

	order    []Conversation
	history  map[string][]Message
	unread   map[string]int
	selected string
}

func NewConversations(kv KV, username string) *Conversations {
	return &Conversations{
		kv:       kv,
		username: username,
		history:  make(map[string][]Message),
		unread:   make(map[string]int),
	}
}

// Ensure inserts the conversation if absent; an existing conversation is
// left unchanged. Returns true when a new conversation was created.
func (c *Conversations) Ensure(id, name string) bool {
	c.Lock()
	defer c.Unlock()

	for _, conv := range c.order {
		if conv.ID == id {
			return false
		}
	}
	if name == "" {
		name = id
	}
	c.order = append(c.order, Conversation{ID: id, Name: name})
	c.persistLocked()
	return true
}

// Append adds a message to the conversation's history. The conversation
// must already exist (the router ensures it before appending).
func (c *Conversations) Append(id string, msg Message) {
	c.Lock()
	c.history[id] = append(c.history[id], msg)
	c.persistLocked()
	c.Unlock()
}

// BumpUnread increments the unread counter unless the conversation is the
// currently selected one.
func (c *Conversations) BumpUnread(id string) {
	c.Lock()
	defer c.Unlock()
	if id == c.selected {
		return
	}
	c.unread[id]++
	c.persistLocked()
}

func (c *Conversations) ClearUnread(id string) {
	c.Lock()
	if c.unread[id] != 0 {
		c.unread[id] = 0
		c.persistLocked()
	}
	c.Unlock()
}

// Select makes the conversation current and zeroes its unread counter.
func (c *Conversations) Select(id string) {
	c.Lock()
	c.selected = id
	if c.unread[id] != 0 {
		c.unread[id] = 0
	}
	c.persistLocked()
	c.Unlock()
}

func (c *Conversations) Selected() string {
	c.RLock()
	defer c.RUnlock()
	return c.selected
}

func (c *Conversations) List() []Conversation {
	c.RLock()
	defer c.RUnlock()
	out := make([]Conversation, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Conversations) History(id string) []Message {
	c.RLock()
	defer c.RUnlock()
	out := make([]Message, len(c.history[id]))
	copy(out, c.history[id])
	return out
}

func (c *Conversations) Unread(id string) int {
	c.RLock()
	defer c.RUnlock()
	return c.unread[id]
}

// Persist writes the full history, unread and index state to the KV.
func (c *Conversations) Persist() {
	c.Lock()
	c.persistLocked()
	c.Unlock()
}

// persistLocked is best-effort: a failed write loses at most the latest
// update and is logged, not surfaced.
func (c *Conversations) persistLocked() {
	history, _ := json.Marshal(c.history)
	unread, _ := json.Marshal(c.unread)
	index, _ := json.Marshal(c.order)

	if err := c.kv.Set(HistoryKey(c.username), string(history)); err != nil {
		glog.Errorf("store: persist history for %s: %v", c.username, err)
	}
	if err := c.kv.Set(UnreadKey(c.username), string(unread)); err != nil {
		glog.Errorf("store: persist unread for %s: %v", c.username, err)
	}
	if err := c.kv.Set(IndexKey(c.username), string(index)); err != nil {
		glog.Errorf("store: persist index for %s: %v", c.username, err)
	}
}

// Restore loads persisted state for the identity. The conversation list is
// seeded from the saved index, then backfilled from history keys so every
// conversation with messages is present even without an index entry.
func (c *Conversations) Restore() {
	c.Lock()
	defer c.Unlock()

	if v, ok := c.kv.Get(IndexKey(c.username)); ok {
		if err := json.Unmarshal([]byte(v), &c.order); err != nil {
			glog.Errorf("store: restore index for %s: %v", c.username, err)
			c.order = nil
		}
	}
	if v, ok := c.kv.Get(HistoryKey(c.username)); ok {
		if err := json.Unmarshal([]byte(v), &c.history); err != nil {
			glog.Errorf("store: restore history for %s: %v", c.username, err)
			c.history = make(map[string][]Message)
		}
	}
	if v, ok := c.kv.Get(UnreadKey(c.username)); ok {
		if err := json.Unmarshal([]byte(v), &c.unread); err != nil {
			glog.Errorf("store: restore unread for %s: %v", c.username, err)
			c.unread = make(map[string]int)
		}
	}

	known := make(map[string]struct{}, len(c.order))
	for _, conv := range c.order {
		known[conv.ID] = struct{}{}
	}
	for id := range c.history {
		if _, ok := known[id]; !ok {
			c.order = append(c.order, Conversation{ID: id, Name: id})
		}
	}
}
