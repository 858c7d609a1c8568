// Package models defines the core data structures for accounts and login options.
package models

// AppType distinguishes how login options are sourced.
type AppType string

const (
	// Native applications supply LoginOptions directly at initialization.
	Native AppType = "native"
	// Hosted applications resolve LoginOptions from the boot configuration.
	Hosted AppType = "hosted"
)

// Account represents the single authenticated account of the process.
// The credential fields are stored encrypted at rest; the plaintext values
// only exist in memory around login and logout.
type Account struct {
	// ID is the unique identifier for the account.
	ID string `json:"id"`
	// RefreshToken is the long-lived credential exchanged with the
	// identity provider for short-lived access tokens.
	RefreshToken string `json:"refresh_token"`
	// ClientID is the OAuth consumer key the account was created with.
	ClientID string `json:"client_id"`
	// InstanceURL is the base URL of the identity provider instance.
	InstanceURL string `json:"instance_url"`
}

// LoginOptions holds the parameters of the OAuth login flow.
// Immutable once constructed.
type LoginOptions struct {
	// LoginHint pre-fills the username on the login screen, may be empty.
	LoginHint string
	// PasscodeHash is the current passcode hash, empty when no passcode is set.
	PasscodeHash string
	// RedirectURI is the OAuth callback URI registered with the provider.
	RedirectURI string
	// ConsumerKey identifies the client application to the provider.
	ConsumerKey string
	// Scopes are the OAuth scopes requested at login.
	Scopes []string
}
