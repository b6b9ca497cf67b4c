// Package auth is the token capability boundary. The adapter core only
// depends on TokenProvider; how tokens are actually obtained is opaque.
package auth

import "context"

// Audience names the token audience a call targets. The zero value means
// the provider's primary audience.
type Audience string

const (
	AudiencePrimary    Audience = ""
	AudienceManagement Audience = "azureManagement"
	AudienceADX        Audience = "adx"
	AudienceStorage    Audience = "storage"
)

// TokenProvider obtains bearer tokens for the Azure surfaces the
// adapters call.
type TokenProvider interface {
	// Login triggers interactive sign-in where the implementation
	// requires one. Non-interactive providers treat it as a no-op.
	Login()

	// GetToken returns a bearer token for the audience.
	GetToken(ctx context.Context, audience Audience) (string, error)
}
