// Package googleweb adapts Google Identity Services to the credential
// provider gateway. The application layer hands over the raw credential it
// received from Google; the provider validates it against the configured
// client id and tracks which subjects were granted before, so the
// authorized-accounts-only filter has meaning on the web platform.
package googleweb

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/idtoken"

	"github.com/mprlab/signinkit/internal/signin"
)

// TokenValidator validates a Google-issued identity token for an audience.
type TokenValidator interface {
	Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error)
}

type googleValidator struct {
	validator *idtoken.Validator
}

func (adapter *googleValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	return adapter.validator.Validate(ctx, token, audience)
}

// Provider implements signin.CredentialProvider for Google web credentials.
type Provider struct {
	validator TokenValidator
	logger    *zap.Logger

	mutex      sync.Mutex
	submitted  string
	authorized map[string]struct{}
}

// New constructs a Provider backed by Google's certificate endpoints.
func New(ctx context.Context, logger *zap.Logger) (*Provider, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, err
	}
	return NewWithValidator(&googleValidator{validator: validator}, logger), nil
}

// NewWithValidator constructs a Provider with an injected validator.
func NewWithValidator(validator TokenValidator, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		validator:  validator,
		logger:     logger,
		authorized: make(map[string]struct{}),
	}
}

// SubmitCredential hands over the raw credential the application obtained
// from Google. It stays pending until a provider call consumes it.
func (provider *Provider) SubmitCredential(raw string) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	provider.submitted = strings.TrimSpace(raw)
}

// GetCredential validates the pending submitted credential. With the
// authorized-only filter, a credential for a never-seen subject reports
// no-credential and stays pending so the relaxed retry can pick it up.
func (provider *Provider) GetCredential(ctx context.Context, request signin.CredentialRequest) signin.CredentialOutcome {
	if err := ctx.Err(); err != nil {
		return signin.CredentialOutcome{Kind: signin.OutcomeCancelled, Detail: err.Error()}
	}

	provider.mutex.Lock()
	raw := provider.submitted
	provider.mutex.Unlock()
	if raw == "" {
		return signin.CredentialOutcome{Kind: signin.OutcomeNoCredential, Detail: "no credential was submitted"}
	}

	payload, validateErr := provider.validator.Validate(ctx, raw, request.ClientID)
	if validateErr != nil {
		provider.consume()
		if ctx.Err() != nil {
			return signin.CredentialOutcome{Kind: signin.OutcomeCancelled, Detail: ctx.Err().Error()}
		}
		return signin.CredentialOutcome{Kind: signin.OutcomeFailure, Detail: "credential parse failed: " + validateErr.Error()}
	}
	issuerValue, _ := payload.Claims["iss"].(string)
	if issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com" {
		provider.consume()
		return signin.CredentialOutcome{Kind: signin.OutcomeFailure, Detail: "unexpected credential issuer " + issuerValue}
	}
	subject, _ := payload.Claims["sub"].(string)
	if subject == "" {
		provider.consume()
		return signin.CredentialOutcome{Kind: signin.OutcomeFailure, Detail: "credential parse failed: missing sub claim"}
	}

	provider.mutex.Lock()
	_, seen := provider.authorized[subject]
	if request.AuthorizedAccountsOnly && !seen {
		provider.mutex.Unlock()
		provider.logger.Info("credential subject not previously authorized",
			zap.String("code", "googleweb.filtered"),
			zap.String("subject", subject))
		return signin.CredentialOutcome{Kind: signin.OutcomeNoCredential, Detail: "no credential for a previously authorized account"}
	}
	provider.authorized[subject] = struct{}{}
	provider.submitted = ""
	provider.mutex.Unlock()

	email, _ := payload.Claims["email"].(string)
	displayName, _ := payload.Claims["name"].(string)
	photoURL, _ := payload.Claims["picture"].(string)

	return signin.CredentialOutcome{Kind: signin.OutcomeCredential, Credential: signin.Credential{
		IDToken:       raw,
		AccountID:     subject,
		DisplayName:   displayName,
		Email:         email,
		PhotoURL:      photoURL,
		GrantedScopes: request.Scopes,
	}}
}

func (provider *Provider) consume() {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	provider.submitted = ""
}
