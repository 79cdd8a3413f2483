// Package localaccounts is a self-contained credential provider for local
// development and tests. It keeps an in-memory account registry and mints
// HS256 identity tokens, behaving like a platform credential subsystem:
// authorized-only filtering, nonce embedding, and cancellation via context.
package localaccounts

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mprlab/signinkit/internal/signin"
)

// DefaultIssuer is stamped into minted tokens when Options.Issuer is empty.
const DefaultIssuer = "signinkit-local"

// Account is one registered identity. Authorized marks accounts the user has
// previously granted to the client.
type Account struct {
	Subject     string
	Email       string
	DisplayName string
	PhotoURL    string
	Authorized  bool
}

// Options configures the provider.
type Options struct {
	// SigningKey signs minted identity tokens. Required.
	SigningKey []byte
	// Issuer defaults to DefaultIssuer.
	Issuer string
	// TokenTTL defaults to one hour.
	TokenTTL time.Duration
}

// Provider implements signin.CredentialProvider over an in-memory registry.
type Provider struct {
	mutex      sync.Mutex
	accounts   []Account
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	now        func() time.Time

	creationPrompts int
}

// New constructs a Provider with no accounts registered.
func New(options Options) *Provider {
	issuer := options.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	tokenTTL := options.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Provider{
		signingKey: options.SigningKey,
		issuer:     issuer,
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
}

// AddAccount registers an account.
func (provider *Provider) AddAccount(account Account) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	provider.accounts = append(provider.accounts, account)
}

// Authorize marks the account with the given subject as previously granted.
func (provider *Provider) Authorize(subject string) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	for index := range provider.accounts {
		if provider.accounts[index].Subject == subject {
			provider.accounts[index].Authorized = true
		}
	}
}

// GetCredential resolves a credential for the first account matching the
// filter, minting a fresh identity token with the request nonce embedded.
func (provider *Provider) GetCredential(ctx context.Context, request signin.CredentialRequest) signin.CredentialOutcome {
	if err := ctx.Err(); err != nil {
		return signin.CredentialOutcome{Kind: signin.OutcomeCancelled, Detail: err.Error()}
	}

	provider.mutex.Lock()
	account, found := provider.selectAccountLocked(request.AuthorizedAccountsOnly)
	if found && !request.AuthorizedAccountsOnly {
		// Granting through the all-accounts picker authorizes the account for
		// later silent flows.
		for index := range provider.accounts {
			if provider.accounts[index].Subject == account.Subject {
				provider.accounts[index].Authorized = true
			}
		}
	}
	provider.mutex.Unlock()

	if !found {
		return signin.CredentialOutcome{Kind: signin.OutcomeNoCredential, Detail: "no credential matched the account filter"}
	}

	idToken, mintErr := provider.mintIDToken(account, request)
	if mintErr != nil {
		return signin.CredentialOutcome{Kind: signin.OutcomeFailure, Detail: mintErr.Error()}
	}
	accessToken, tokenErr := randomOpaque()
	if tokenErr != nil {
		return signin.CredentialOutcome{Kind: signin.OutcomeFailure, Detail: tokenErr.Error()}
	}
	credential := signin.Credential{
		IDToken:       idToken,
		AccountID:     account.Subject,
		DisplayName:   account.DisplayName,
		Email:         account.Email,
		PhotoURL:      account.PhotoURL,
		GrantedScopes: request.Scopes,
		AccessToken:   accessToken,
	}
	if request.OfflineAccess {
		authCode, codeErr := randomOpaque()
		if codeErr != nil {
			return signin.CredentialOutcome{Kind: signin.OutcomeFailure, Detail: codeErr.Error()}
		}
		credential.ServerAuthCode = authCode
	}
	return signin.CredentialOutcome{Kind: signin.OutcomeCredential, Credential: credential}
}

// PromptAccountCreation records that the platform was asked to create an
// account. The prompt is advisory; nothing is created.
func (provider *Provider) PromptAccountCreation(ctx context.Context) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	provider.creationPrompts++
}

// CreationPrompts reports how many times account creation was prompted.
func (provider *Provider) CreationPrompts() int {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return provider.creationPrompts
}

func (provider *Provider) selectAccountLocked(authorizedOnly bool) (Account, bool) {
	for _, account := range provider.accounts {
		if authorizedOnly && !account.Authorized {
			continue
		}
		return account, true
	}
	return Account{}, false
}

type identityClaims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

func (provider *Provider) mintIDToken(account Account, request signin.CredentialRequest) (string, error) {
	issuedAt := provider.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims{
		Email:   account.Email,
		Name:    account.DisplayName,
		Picture: account.PhotoURL,
		Nonce:   request.Nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    provider.issuer,
			Subject:   account.Subject,
			Audience:  jwt.ClaimStrings{request.ClientID},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(provider.tokenTTL)),
		},
	})
	return token.SignedString(provider.signingKey)
}

func randomOpaque() (string, error) {
	buffer := make([]byte, 32)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
