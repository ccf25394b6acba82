package chat

import (
	"fmt"
	"strings"
)

// Identity addresses one conversation: the owner hash and session ID
// embedded in a /chat/{ownerHash}/{sessionID} path.
type Identity struct {
	OwnerHash string
	SessionID string
}

// ResolveIdentity derives a session identity from a location path. It
// is pure and performs no I/O; ok is false for any path outside the
// chat addressing scheme.
func ResolveIdentity(path string) (Identity, bool) {
	segments := strings.Split(path, "/")
	if len(segments) < 4 || segments[1] != "chat" {
		return Identity{}, false
	}
	return Identity{OwnerHash: segments[2], SessionID: segments[3]}, true
}

// BuildChatPath is the inverse of ResolveIdentity: paths it returns
// always resolve.
func BuildChatPath(ownerHash, sessionID string) string {
	return fmt.Sprintf("/chat/%s/%s", ownerHash, sessionID)
}
