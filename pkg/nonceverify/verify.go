// Package nonceverify checks the anti-replay nonce binding of identity
// tokens. Resource backends use it to confirm that a token a client presents
// was minted for the nonce the backend issued, independently of signature
// verification, which remains the token issuer's trust domain.
package nonceverify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors exposed by the verifier.
var (
	ErrMissingToken      = errors.New("nonce.verify.missing_token")
	ErrMissingNonce      = errors.New("nonce.verify.missing_nonce")
	ErrUndecodableToken  = errors.New("nonce.verify.undecodable_token")
	ErrMissingNonceClaim = errors.New("nonce.verify.missing_nonce_claim")
	ErrNonceMismatch     = errors.New("nonce.verify.mismatch")
)

// Verify decodes the claims of idToken and requires its nonce claim to equal
// expectedNonce exactly.
func Verify(idToken string, expectedNonce string) error {
	if strings.TrimSpace(idToken) == "" {
		return fmt.Errorf("nonce.verify: %w", ErrMissingToken)
	}
	if strings.TrimSpace(expectedNonce) == "" {
		return fmt.Errorf("nonce.verify: %w", ErrMissingNonce)
	}
	claims := jwt.MapClaims{}
	if _, _, parseErr := jwt.NewParser().ParseUnverified(idToken, claims); parseErr != nil {
		return fmt.Errorf("nonce.verify: %w: %s", ErrUndecodableToken, parseErr)
	}
	embedded, ok := claims["nonce"].(string)
	if !ok || embedded == "" {
		return fmt.Errorf("nonce.verify: %w", ErrMissingNonceClaim)
	}
	if embedded != expectedNonce {
		return fmt.Errorf("nonce.verify: %w", ErrNonceMismatch)
	}
	return nil
}

// EmbeddedNonce returns the nonce claim of idToken, or an error when the
// token cannot be decoded or carries none.
func EmbeddedNonce(idToken string) (string, error) {
	if strings.TrimSpace(idToken) == "" {
		return "", fmt.Errorf("nonce.verify: %w", ErrMissingToken)
	}
	claims := jwt.MapClaims{}
	if _, _, parseErr := jwt.NewParser().ParseUnverified(idToken, claims); parseErr != nil {
		return "", fmt.Errorf("nonce.verify: %w: %s", ErrUndecodableToken, parseErr)
	}
	embedded, ok := claims["nonce"].(string)
	if !ok || embedded == "" {
		return "", fmt.Errorf("nonce.verify: %w", ErrMissingNonceClaim)
	}
	return embedded, nil
}
