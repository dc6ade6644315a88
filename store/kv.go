package store

// KV is the durable scoped string key/value store the client persists
// into. Semantics follow browser local storage: synchronous get/set/remove,
// values survive process restarts.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(key string) (string, bool)

	Set(key, value string) error

	// Delete removes the given keys; missing keys are not an error.
	Delete(keys ...string) error
}

// Persistence keys. History, unread and index keys are scoped by the
// authenticated username and MUST be removed together on logout.
const (
	TokenKey = "token"

	historyKeyBase = "chatHistory_"
	unreadKeyBase  = "unreadCounts_"
	indexKeyBase   = "chatIndex_"
)

func HistoryKey(username string) string { return historyKeyBase + username }
func UnreadKey(username string) string  { return unreadKeyBase + username }
func IndexKey(username string) string   { return indexKeyBase + username }

// UserKeys lists every key scoped to a username, for logout cleanup.
func UserKeys(username string) []string {
	return []string{HistoryKey(username), UnreadKey(username), IndexKey(username)}
}
