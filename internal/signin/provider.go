package signin

import "context"

// OutcomeKind tags a CredentialOutcome.
type OutcomeKind int

// Provider outcome variants. Providers report failure through these tags, not
// through live errors, so classification never inspects exception types.
const (
	OutcomeCredential OutcomeKind = iota
	OutcomeNoCredential
	OutcomeCancelled
	OutcomeFailure
)

// Credential is the raw payload a provider resolves on success. Optional
// fields stay empty when the provider does not supply them.
type Credential struct {
	IDToken        string
	AccountID      string
	DisplayName    string
	Email          string
	PhotoURL       string
	GrantedScopes  []string
	AccessToken    string
	ServerAuthCode string
}

// CredentialOutcome is the tagged result of a provider request. Detail is
// free-form provider text, consulted only by the substring fallback of the
// classifier when Kind is OutcomeFailure.
type CredentialOutcome struct {
	Kind       OutcomeKind
	Credential Credential
	Detail     string
}

// CredentialRequest describes one provider call.
type CredentialRequest struct {
	// AuthorizedAccountsOnly restricts account selection to accounts the user
	// previously granted to this client.
	AuthorizedAccountsOnly bool
	// Nonce is bound into the minted identity token when non-empty.
	Nonce string
	// ClientID of the application asking for the credential.
	ClientID string
	// Scopes requested for the credential.
	Scopes []string
	// OfflineAccess asks the provider for a server auth code.
	OfflineAccess bool
}

// CredentialProvider is the gateway to a platform identity subsystem. A call
// may suspend for an unbounded time while the user interacts with provider UI;
// cancellation happens only through ctx.
type CredentialProvider interface {
	GetCredential(ctx context.Context, request CredentialRequest) CredentialOutcome
}

// AccountCreator is optionally implemented by providers that can show a
// best-effort account-creation prompt when no accounts exist at all.
type AccountCreator interface {
	PromptAccountCreation(ctx context.Context)
}
