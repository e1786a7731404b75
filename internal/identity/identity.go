package identity

import "strings"

// Identity is the canonical document-store key for a user, derived from an
// email-like address. Two identities are equal iff their canonical keys are.
type Identity string

// Canonicalize maps an email-like address to its store key by replacing
// every '.' and '@' with '-'. Total and idempotent: the substitution
// characters never appear in its own output positions for '.' or '@'.
func Canonicalize(raw string) Identity {
	safe := strings.ReplaceAll(raw, ".", "-")
	safe = strings.ReplaceAll(safe, "@", "-")
	return Identity(safe)
}

// String returns the canonical key.
func (id Identity) String() string {
	return string(id)
}

// ConversationsKey returns the store key of this user's conversation index.
func (id Identity) ConversationsKey() string {
	return string(id) + "/conversations"
}
