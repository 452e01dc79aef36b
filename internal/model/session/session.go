package session

import "time"

// ExternalIdentity is a third-party account linked to a session via OAuth.
type ExternalIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Session binds an opaque token to optional linked identity and last-seen time.
type Session struct {
	Token    string
	LastSeen time.Time
	Identity *ExternalIdentity
}

// Linked reports whether a third-party identity is attached.
func (s Session) Linked() bool {
	return s.Identity != nil
}
