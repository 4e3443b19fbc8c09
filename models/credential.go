package models

import "time"

// Credential is the authentication material kept in the encrypted store.
// It never shares a persistence container with business data: loss or
// corruption of either store must not affect the other.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token's lifetime has passed. A zero
// ExpiresAt is treated as not expired, the server will reject the token if
// it is actually stale.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
