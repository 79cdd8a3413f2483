package googleweb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
	"google.golang.org/api/idtoken"

	"github.com/mprlab/signinkit/internal/signin"
)

type fakeValidator struct {
	payloads map[string]*idtoken.Payload
	audience string
}

func (validator *fakeValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	if validator.audience != "" && audience != validator.audience {
		return nil, errors.New("audience mismatch")
	}
	payload, ok := validator.payloads[token]
	if !ok {
		return nil, errors.New("invalid token signature")
	}
	return payload, nil
}

func googlePayload(subject string) *idtoken.Payload {
	return &idtoken.Payload{Claims: map[string]interface{}{
		"iss":     "https://accounts.google.com",
		"sub":     subject,
		"email":   subject + "@example.com",
		"name":    "User " + subject,
		"picture": "https://example.com/" + subject + ".png",
	}}
}

func testRequest(authorizedOnly bool) signin.CredentialRequest {
	return signin.CredentialRequest{
		AuthorizedAccountsOnly: authorizedOnly,
		ClientID:               "client-id",
		Scopes:                 []string{"openid"},
	}
}

func newTestProvider(t *testing.T, payloads map[string]*idtoken.Payload) *Provider {
	t.Helper()
	return NewWithValidator(&fakeValidator{payloads: payloads, audience: "client-id"}, zaptest.NewLogger(t))
}

func TestGetCredentialWithoutSubmission(t *testing.T) {
	t.Parallel()
	provider := newTestProvider(t, nil)
	outcome := provider.GetCredential(context.Background(), testRequest(false))
	if outcome.Kind != signin.OutcomeNoCredential {
		t.Fatalf("expected no credential without submission, got kind %d", outcome.Kind)
	}
}

func TestFirstTimeSubjectFilteredThenAcceptedOnRelaxedRetry(t *testing.T) {
	t.Parallel()
	provider := newTestProvider(t, map[string]*idtoken.Payload{"raw-token": googlePayload("sub-1")})
	provider.SubmitCredential("raw-token")

	// Authorized-only request for a never-seen subject: filtered, and the
	// submission stays pending for the relaxed retry.
	outcome := provider.GetCredential(context.Background(), testRequest(true))
	if outcome.Kind != signin.OutcomeNoCredential {
		t.Fatalf("expected filtered outcome, got kind %d (%s)", outcome.Kind, outcome.Detail)
	}

	outcome = provider.GetCredential(context.Background(), testRequest(false))
	if outcome.Kind != signin.OutcomeCredential {
		t.Fatalf("expected credential on relaxed retry, got kind %d (%s)", outcome.Kind, outcome.Detail)
	}
	if outcome.Credential.AccountID != "sub-1" || outcome.Credential.Email != "sub-1@example.com" {
		t.Fatalf("unexpected credential %+v", outcome.Credential)
	}
}

func TestKnownSubjectPassesAuthorizedFilter(t *testing.T) {
	t.Parallel()
	provider := newTestProvider(t, map[string]*idtoken.Payload{"raw-token": googlePayload("sub-2")})

	provider.SubmitCredential("raw-token")
	if outcome := provider.GetCredential(context.Background(), testRequest(false)); outcome.Kind != signin.OutcomeCredential {
		t.Fatalf("seed grant failed: kind %d", outcome.Kind)
	}

	provider.SubmitCredential("raw-token")
	outcome := provider.GetCredential(context.Background(), testRequest(true))
	if outcome.Kind != signin.OutcomeCredential {
		t.Fatalf("expected known subject to pass the authorized filter, got kind %d", outcome.Kind)
	}
}

func TestInvalidTokenReportsParseFailure(t *testing.T) {
	t.Parallel()
	provider := newTestProvider(t, nil)
	provider.SubmitCredential("forged-token")

	outcome := provider.GetCredential(context.Background(), testRequest(false))
	if outcome.Kind != signin.OutcomeFailure {
		t.Fatalf("expected failure outcome, got kind %d", outcome.Kind)
	}
	if !strings.Contains(strings.ToLower(outcome.Detail), "parse") {
		t.Fatalf("expected parse detail for classifier fallback, got %q", outcome.Detail)
	}

	// The bad submission was consumed; the next call sees nothing pending.
	outcome = provider.GetCredential(context.Background(), testRequest(false))
	if outcome.Kind != signin.OutcomeNoCredential {
		t.Fatalf("expected bad submission consumed, got kind %d", outcome.Kind)
	}
}

func TestUnexpectedIssuerRejected(t *testing.T) {
	t.Parallel()
	payload := &idtoken.Payload{Claims: map[string]interface{}{
		"iss": "https://evil.example.com",
		"sub": "sub-3",
	}}
	provider := newTestProvider(t, map[string]*idtoken.Payload{"raw-token": payload})
	provider.SubmitCredential("raw-token")

	outcome := provider.GetCredential(context.Background(), testRequest(false))
	if outcome.Kind != signin.OutcomeFailure {
		t.Fatalf("expected failure for wrong issuer, got kind %d", outcome.Kind)
	}
	if !strings.Contains(outcome.Detail, "issuer") {
		t.Fatalf("expected issuer detail, got %q", outcome.Detail)
	}
}

func TestCancelledContextReportsCancellation(t *testing.T) {
	t.Parallel()
	provider := newTestProvider(t, nil)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := provider.GetCredential(cancelled, testRequest(false))
	if outcome.Kind != signin.OutcomeCancelled {
		t.Fatalf("expected cancellation outcome, got kind %d", outcome.Kind)
	}
}
