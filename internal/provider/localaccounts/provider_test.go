package localaccounts

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mprlab/signinkit/internal/signin"
)

var testSigningKey = []byte("local-provider-test-key")

func newTestProvider() *Provider {
	return New(Options{SigningKey: testSigningKey, TokenTTL: time.Hour})
}

func testRequest(authorizedOnly bool, nonce string) signin.CredentialRequest {
	return signin.CredentialRequest{
		AuthorizedAccountsOnly: authorizedOnly,
		Nonce:                  nonce,
		ClientID:               "test-client",
		Scopes:                 []string{"openid", "email"},
	}
}

func decodeClaims(t *testing.T, idToken string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(idToken, claims, func(parsed *jwt.Token) (interface{}, error) {
		return testSigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		t.Fatalf("minted token did not verify: %v", err)
	}
	return claims
}

func TestGetCredentialHonorsAuthorizedFilter(t *testing.T) {
	t.Parallel()
	provider := newTestProvider()
	provider.AddAccount(Account{Subject: "alice", Email: "alice@example.com"})

	outcome := provider.GetCredential(context.Background(), testRequest(true, ""))
	if outcome.Kind != signin.OutcomeNoCredential {
		t.Fatalf("expected no credential for unauthorized account, got kind %d", outcome.Kind)
	}

	provider.Authorize("alice")
	outcome = provider.GetCredential(context.Background(), testRequest(true, ""))
	if outcome.Kind != signin.OutcomeCredential {
		t.Fatalf("expected credential after authorization, got kind %d (%s)", outcome.Kind, outcome.Detail)
	}
	if outcome.Credential.Email != "alice@example.com" {
		t.Fatalf("unexpected credential %+v", outcome.Credential)
	}
}

func TestAllAccountsPickerAuthorizesForLaterSilentUse(t *testing.T) {
	t.Parallel()
	provider := newTestProvider()
	provider.AddAccount(Account{Subject: "bob", Email: "bob@example.com"})

	outcome := provider.GetCredential(context.Background(), testRequest(false, ""))
	if outcome.Kind != signin.OutcomeCredential {
		t.Fatalf("expected all-accounts pick to succeed, got kind %d", outcome.Kind)
	}

	outcome = provider.GetCredential(context.Background(), testRequest(true, ""))
	if outcome.Kind != signin.OutcomeCredential {
		t.Fatalf("expected account authorized after all-accounts grant, got kind %d", outcome.Kind)
	}
}

func TestGetCredentialWithNoAccounts(t *testing.T) {
	t.Parallel()
	provider := newTestProvider()
	outcome := provider.GetCredential(context.Background(), testRequest(false, ""))
	if outcome.Kind != signin.OutcomeNoCredential {
		t.Fatalf("expected no credential with empty registry, got kind %d", outcome.Kind)
	}
}

func TestMintedTokenEmbedsNonceAndIdentity(t *testing.T) {
	t.Parallel()
	provider := newTestProvider()
	provider.AddAccount(Account{
		Subject:     "carol",
		Email:       "carol@example.com",
		DisplayName: "Carol",
		Authorized:  true,
	})

	outcome := provider.GetCredential(context.Background(), testRequest(true, "nonce-value-nonce-value-nonce-value"))
	if outcome.Kind != signin.OutcomeCredential {
		t.Fatalf("expected credential, got kind %d", outcome.Kind)
	}

	claims := decodeClaims(t, outcome.Credential.IDToken)
	if claims["sub"] != "carol" {
		t.Fatalf("expected sub claim carol, got %v", claims["sub"])
	}
	if claims["nonce"] != "nonce-value-nonce-value-nonce-value" {
		t.Fatalf("expected nonce claim embedded, got %v", claims["nonce"])
	}
	if claims["email"] != "carol@example.com" {
		t.Fatalf("expected email claim, got %v", claims["email"])
	}
	if outcome.Credential.AccessToken == "" {
		t.Fatalf("expected an access token")
	}
}

func TestOfflineAccessMintsServerAuthCode(t *testing.T) {
	t.Parallel()
	provider := newTestProvider()
	provider.AddAccount(Account{Subject: "dave", Authorized: true})

	request := testRequest(true, "")
	request.OfflineAccess = true
	outcome := provider.GetCredential(context.Background(), request)
	if outcome.Kind != signin.OutcomeCredential {
		t.Fatalf("expected credential, got kind %d", outcome.Kind)
	}
	if outcome.Credential.ServerAuthCode == "" {
		t.Fatalf("expected server auth code with offline access")
	}

	request.OfflineAccess = false
	outcome = provider.GetCredential(context.Background(), request)
	if outcome.Credential.ServerAuthCode != "" {
		t.Fatalf("expected no server auth code without offline access")
	}
}

func TestCancelledContextReportsCancellation(t *testing.T) {
	t.Parallel()
	provider := newTestProvider()
	provider.AddAccount(Account{Subject: "erin", Authorized: true})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := provider.GetCredential(cancelled, testRequest(true, ""))
	if outcome.Kind != signin.OutcomeCancelled {
		t.Fatalf("expected cancellation outcome, got kind %d", outcome.Kind)
	}
}

func TestPromptAccountCreationCounts(t *testing.T) {
	t.Parallel()
	provider := newTestProvider()
	provider.PromptAccountCreation(context.Background())
	provider.PromptAccountCreation(context.Background())
	if provider.CreationPrompts() != 2 {
		t.Fatalf("expected two prompts recorded, got %d", provider.CreationPrompts())
	}
}
