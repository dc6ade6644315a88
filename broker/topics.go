package broker

// Fixed topics of the auth/messaging service.
const (
	AuthRegister = "/auth/register"
	AuthLogin    = "/auth/login"

	P2PSend       = "/message/p2p"
	GroupWildcard = "/message/group/+"

	authResponseBase = "/auth/response/"
	p2pInboxBase     = "/message/p2p/"
)

// AuthResponse is the per-user reply topic for login/register requests.
func AuthResponse(username string) string {
	return authResponseBase + username
}

// P2PInbox is the per-user inbox topic for direct messages.
func P2PInbox(username string) string {
	return p2pInboxBase + username
}
