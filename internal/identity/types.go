package identity

import "time"

// Profile is what the identity provider reports for a bearer token.
type Profile struct {
	IdentityID string
	Email      string
}

// Identity is one row of the identities table.
type Identity struct {
	ID       string
	HubID    string
	Email    string
	MappedAt time.Time
	LastSeen time.Time
	Tokens   Tokens
}

// Mapped reports whether the identity is bound to a hub.
func (i *Identity) Mapped() bool {
	return i.HubID != ""
}

// AlexaLinked reports whether AcceptGrant ever stored an access token.
func (i *Identity) AlexaLinked() bool {
	return i.Tokens.AccessToken != ""
}

// Tokens are the identity's Login-with-Amazon credentials.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
