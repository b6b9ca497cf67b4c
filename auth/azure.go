package auth

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// Scopes requested per audience.
var audienceScopes = map[Audience][]string{
	AudiencePrimary:    {"https://digitaltwins.azure.net/.default"},
	AudienceManagement: {"https://management.azure.com/.default"},
	AudienceADX:        {"https://help.kusto.windows.net/.default"},
	AudienceStorage:    {"https://storage.azure.com/.default"},
}

// AzureTokenProvider adapts an azcore.TokenCredential to the
// TokenProvider capability.
type AzureTokenProvider struct {
	cred azcore.TokenCredential
}

// NewAzureTokenProvider wraps an existing credential.
func NewAzureTokenProvider(cred azcore.TokenCredential) *AzureTokenProvider {
	return &AzureTokenProvider{cred: cred}
}

// NewDefaultTokenProvider builds a provider over the default Azure
// credential chain (env vars, managed identity, az CLI).
func NewDefaultTokenProvider(tenantID string) (*AzureTokenProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		TenantID: tenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build azure credential: %w", err)
	}
	return &AzureTokenProvider{cred: cred}, nil
}

// Login is a no-op; the credential chain authenticates lazily.
func (p *AzureTokenProvider) Login() {}

// GetToken acquires a bearer token for the audience's scopes.
func (p *AzureTokenProvider) GetToken(ctx context.Context, audience Audience) (string, error) {
	scopes, ok := audienceScopes[audience]
	if !ok {
		scopes = audienceScopes[AudiencePrimary]
	}
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
	if err != nil {
		return "", fmt.Errorf("failed to acquire token for %q: %w", audience, err)
	}
	return tok.Token, nil
}

// StaticTokenProvider returns fixed tokens, for tests and proxied
// deployments where the front end already holds tokens.
type StaticTokenProvider struct {
	Tokens map[Audience]string
}

func (p *StaticTokenProvider) Login() {}

func (p *StaticTokenProvider) GetToken(_ context.Context, audience Audience) (string, error) {
	if tok, ok := p.Tokens[audience]; ok {
		return tok, nil
	}
	if tok, ok := p.Tokens[AudiencePrimary]; ok {
		return tok, nil
	}
	return "", fmt.Errorf("no token configured for audience %q", audience)
}
