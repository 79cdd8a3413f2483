package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/mprlab/signinkit/internal/provider/localaccounts"
	"github.com/mprlab/signinkit/internal/signin"
)

type testHarness struct {
	server   *httptest.Server
	provider *localaccounts.Provider
	attempts *signin.MemoryAttemptStore
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := localaccounts.New(localaccounts.Options{SigningKey: []byte("web-test-key")})
	attempts := signin.NewMemoryAttemptStore()
	logger := zaptest.NewLogger(t)

	orchestrator := signin.New(signin.Options{
		Provider:     provider,
		Presentation: signin.StaticPresentation(true),
		Logger:       logger,
		Attempts:     attempts,
	})
	t.Cleanup(orchestrator.Close)

	if err := orchestrator.Configure(context.Background(), signin.Config{ClientID: "web-client"}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	router := gin.New()
	MountSignInRoutes(router, orchestrator, nil, attempts, logger)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testHarness{server: server, provider: provider, attempts: attempts}
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reader).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	response, err := http.Post(url, "application/json", &reader)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer func() { _ = response.Body.Close() }()
	decoded := map[string]any{}
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	return response, decoded
}

func TestSignInEndToEndWithNonce(t *testing.T) {
	harness := newTestHarness(t)
	harness.provider.AddAccount(localaccounts.Account{
		Subject:     "alice",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Authorized:  true,
	})

	nonceResp, noncePayload := postJSON(t, harness.server.URL+"/auth/nonce", nil)
	if nonceResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from nonce endpoint, got %d", nonceResp.StatusCode)
	}
	nonce, _ := noncePayload["nonce"].(string)
	if nonce == "" {
		t.Fatalf("expected a nonce in the response")
	}

	signInResp, signInPayload := postJSON(t, harness.server.URL+"/auth/signin", map[string]string{"nonce": nonce})
	if signInResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from sign-in, got %d (%v)", signInResp.StatusCode, signInPayload)
	}
	if token, _ := signInPayload["id_token"].(string); token == "" {
		t.Fatalf("expected id_token in payload %v", signInPayload)
	}
	if echoed, _ := signInPayload["nonce"].(string); echoed != nonce {
		t.Fatalf("expected nonce echoed, got %q", echoed)
	}
	user, _ := signInPayload["user"].(map[string]any)
	if user == nil || user["id"] != "alice" {
		t.Fatalf("unexpected user payload %v", signInPayload["user"])
	}
}

func TestSilentSignInWithoutPriorGrantReturnsSignInRequired(t *testing.T) {
	harness := newTestHarness(t)
	harness.provider.AddAccount(localaccounts.Account{Subject: "bob"})

	response, payload := postJSON(t, harness.server.URL+"/auth/signin/silent", nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (%v)", response.StatusCode, payload)
	}
	if payload["code"] != string(signin.CodeSignInRequired) {
		t.Fatalf("expected SIGN_IN_REQUIRED, got %v", payload["code"])
	}
}

func TestTokensEndpointShapesRefreshResult(t *testing.T) {
	harness := newTestHarness(t)
	harness.provider.AddAccount(localaccounts.Account{Subject: "carol", Authorized: true})

	response, payload := postJSON(t, harness.server.URL+"/auth/tokens", nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from tokens, got %d (%v)", response.StatusCode, payload)
	}
	if token, _ := payload["id_token"].(string); token == "" {
		t.Fatalf("expected id_token, got %v", payload)
	}
	if _, present := payload["access_token"]; !present {
		t.Fatalf("expected access_token field, got %v", payload)
	}
}

func TestSignOutClearsConfiguration(t *testing.T) {
	harness := newTestHarness(t)
	harness.provider.AddAccount(localaccounts.Account{Subject: "dave", Authorized: true})

	response, err := http.Post(harness.server.URL+"/auth/signout", "application/json", nil)
	if err != nil {
		t.Fatalf("signout request: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from signout, got %d", response.StatusCode)
	}

	silentResp, payload := postJSON(t, harness.server.URL+"/auth/signin/silent", nil)
	if silentResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 after signout, got %d (%v)", silentResp.StatusCode, payload)
	}
	if payload["code"] != string(signin.CodeNotConfigured) {
		t.Fatalf("expected NOT_CONFIGURED, got %v", payload["code"])
	}
}

func TestStatusAndAvailability(t *testing.T) {
	harness := newTestHarness(t)

	response, err := http.Get(harness.server.URL + "/auth/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	statusPayload := map[string]any{}
	_ = json.NewDecoder(response.Body).Decode(&statusPayload)
	_ = response.Body.Close()
	if signedIn, _ := statusPayload["signed_in"].(bool); signedIn {
		t.Fatalf("expected signed_in false, got %v", statusPayload)
	}

	response, err = http.Get(harness.server.URL + "/auth/availability")
	if err != nil {
		t.Fatalf("availability request: %v", err)
	}
	availabilityPayload := map[string]any{}
	_ = json.NewDecoder(response.Body).Decode(&availabilityPayload)
	_ = response.Body.Close()
	if available, _ := availabilityPayload["available"].(bool); !available {
		t.Fatalf("expected available true, got %v", availabilityPayload)
	}
}

func TestAttemptsEndpointListsOutcomes(t *testing.T) {
	harness := newTestHarness(t)
	harness.provider.AddAccount(localaccounts.Account{Subject: "erin", Authorized: true})

	if response, _ := postJSON(t, harness.server.URL+"/auth/signin", nil); response.StatusCode != http.StatusOK {
		t.Fatalf("seed sign-in failed: %d", response.StatusCode)
	}

	listResp, listPayload := getJSON(t, harness.server.URL+"/auth/attempts?limit=10")
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from attempts, got %d", listResp.StatusCode)
	}
	attempts, _ := listPayload["attempts"].([]any)
	if len(attempts) != 1 {
		t.Fatalf("expected one attempt record, got %v", listPayload)
	}
	first, _ := attempts[0].(map[string]any)
	if first["outcome"] != signin.AttemptOutcomeSuccess || first["subject"] != "erin" {
		t.Fatalf("unexpected attempt record %v", first)
	}
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	response, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer func() { _ = response.Body.Close() }()
	decoded := map[string]any{}
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	return response, decoded
}

func TestInvalidJSONRejected(t *testing.T) {
	harness := newTestHarness(t)
	response, err := http.Post(harness.server.URL+"/auth/signin", "application/json", bytes.NewBufferString("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", response.StatusCode)
	}
}
