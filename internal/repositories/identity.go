package repositories

import "context"

// IdentityProvider mirrors directory changes to the external account store.
type IdentityProvider interface {
	SetAccountDisabled(ctx context.Context, userID string, disabled bool) error

	// DeleteAccount succeeds when the account is already gone.
	DeleteAccount(ctx context.Context, userID string) error
}

// NopIdentityProvider is used when no identity provider is configured.
type NopIdentityProvider struct{}

func (NopIdentityProvider) SetAccountDisabled(context.Context, string, bool) error { return nil }
func (NopIdentityProvider) DeleteAccount(context.Context, string) error            { return nil }
