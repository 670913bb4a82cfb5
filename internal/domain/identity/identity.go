// internal/domain/identity/identity.go
package identity

// Identity is the acting caller of a core operation. Exactly one of the three
// shapes applies: an authenticated user, a guest session, or nobody at all.
// Core services receive it explicitly instead of digging through request state.
type Identity struct {
	UserID       *uint
	OrgID        *uint
	SessionToken string
}

// Authenticated builds an identity for a logged-in user.
func Authenticated(userID uint, orgID *uint) Identity {
	return Identity{UserID: &userID, OrgID: orgID}
}

// Guest builds an identity for an anonymous session.
func Guest(sessionToken string) Identity {
	return Identity{SessionToken: sessionToken}
}

// Anonymous is an identity with neither a user nor a session.
func Anonymous() Identity {
	return Identity{}
}

// IsAuthenticated reports whether the identity carries a user.
func (i Identity) IsAuthenticated() bool {
	return i.UserID != nil
}

// IsGuest reports whether the identity carries only a session token.
func (i Identity) IsGuest() bool {
	return i.UserID == nil && i.SessionToken != ""
}

// IsAnonymous reports whether the identity carries nothing usable.
func (i Identity) IsAnonymous() bool {
	return i.UserID == nil && i.SessionToken == ""
}
