package signin

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserProfile is the normalized account shape inside a SignInResult. Optional
// fields are empty strings when the provider did not supply them.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url"`
}

// SignInResult is resolved by the interactive and silent flows.
type SignInResult struct {
	IDToken        string      `json:"id_token"`
	User           UserProfile `json:"user"`
	Nonce          string      `json:"nonce,omitempty"`
	GrantedScopes  []string    `json:"granted_scopes,omitempty"`
	AccessToken    string      `json:"access_token,omitempty"`
	ServerAuthCode string      `json:"server_auth_code,omitempty"`
}

// TokenRefreshResult is resolved by the token-refresh flow. AccessToken may be
// empty when the provider mints none for the requested scopes.
type TokenRefreshResult struct {
	IDToken       string   `json:"id_token"`
	AccessToken   string   `json:"access_token"`
	GrantedScopes []string `json:"granted_scopes,omitempty"`
}

func decodeTokenClaims(idToken string) jwt.MapClaims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil
	}
	return claims
}

func claimString(claims jwt.MapClaims, name string) string {
	if claims == nil {
		return ""
	}
	value, _ := claims[name].(string)
	return value
}

// buildSignInResult shapes a provider credential into a SignInResult. The user
// id prefers the sub claim over account-selection metadata: the claim survives
// email changes, the metadata id does not.
func buildSignInResult(credential Credential, nonce string) (SignInResult, *ErrorRecord) {
	if credential.IDToken == "" {
		return SignInResult{}, newError(CodeCredentialParseError, "provider credential carries no identity token")
	}
	claims := decodeTokenClaims(credential.IDToken)

	userID := claimString(claims, "sub")
	if userID == "" {
		userID = credential.AccountID
	}
	if userID == "" {
		return SignInResult{}, newError(CodeCredentialParseError, "credential carries no stable user identifier")
	}

	email := credential.Email
	if email == "" {
		email = claimString(claims, "email")
	}
	displayName := credential.DisplayName
	if displayName == "" {
		displayName = claimString(claims, "name")
	}
	photoURL := credential.PhotoURL
	if photoURL == "" {
		photoURL = claimString(claims, "picture")
	}

	return SignInResult{
		IDToken: credential.IDToken,
		User: UserProfile{
			ID:          userID,
			DisplayName: displayName,
			Email:       email,
			PhotoURL:    photoURL,
		},
		Nonce:          nonce,
		GrantedScopes:  credential.GrantedScopes,
		AccessToken:    credential.AccessToken,
		ServerAuthCode: credential.ServerAuthCode,
	}, nil
}

func buildTokenRefreshResult(credential Credential) (TokenRefreshResult, *ErrorRecord) {
	if credential.IDToken == "" {
		return TokenRefreshResult{}, newError(CodeCredentialParseError, "provider credential carries no identity token")
	}
	return TokenRefreshResult{
		IDToken:       credential.IDToken,
		AccessToken:   credential.AccessToken,
		GrantedScopes: credential.GrantedScopes,
	}, nil
}
