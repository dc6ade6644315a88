package chat

// Message type discriminators on the wire.
const (
	typeDirect = "direct"
	typeGroup  = "group"

	statusError = "error"
)

// inbound is the wire shape of a message delivered on an inbox or group
// topic. Fields not present for a given type are left empty.
type inbound struct {
	Type          string `json:"type"`
	Status        string `json:"status,omitempty"`
	Message       string `json:"message,omitempty"`
	From          string `json:"from,omitempty"`
	Sender        string `json:"sender,omitempty"`
	GroupID       string `json:"groupId,omitempty"`
	GroupName     string `json:"groupName,omitempty"`
	Content       string `json:"content,omitempty"`
	Hash          string `json:"hash,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// routed is an inbound message classified into a conversation.
type routed struct {
	convID string
	name   string
	sender string

	content string
	direct  bool
	hash    string
}

// route classifies an inbound payload. Direct messages map to the sender's
// conversation; group messages map to the group's, with the display name
// overridden by groupName when present. Anything else is unroutable.
func route(msg *inbound) (*routed, bool) {
	switch {
	case msg.Type == typeDirect && msg.From != "" && msg.Content != "":
		return &routed{
			convID:  msg.From,
			name:    msg.From,
			sender:  msg.From,
			content: msg.Content,
			direct:  true,
			hash:    msg.Hash,
		}, true

	case msg.Type == typeGroup && msg.GroupID != "" && msg.Content != "":
		sender := msg.Sender
		if sender == "" {
			sender = msg.From
		}
		name := msg.GroupName
		if name == "" {
			name = msg.GroupID
		}
		return &routed{
			convID:  msg.GroupID,
			name:    name,
			sender:  sender,
			content: msg.Content,
		}, true
	}

	return nil, false
}
