package signin

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultNonceByteLength is used when GenerateNonce receives zero.
	DefaultNonceByteLength = 32

	minNonceByteLength = 16
	maxNonceByteLength = 128

	minNonceChars = 32
	maxNonceChars = 255
)

// GenerateNonce returns a URL-safe random nonce derived from byteLength random
// bytes. Lengths below 16 bytes carry too little entropy and lengths above 128
// bloat the minted token; both are rejected.
func GenerateNonce(byteLength int) (string, error) {
	if byteLength == 0 {
		byteLength = DefaultNonceByteLength
	}
	if byteLength < minNonceByteLength || byteLength > maxNonceByteLength {
		return "", newErrorDetail(CodeNonceFormatError, "nonce byte length out of range",
			fmt.Sprintf("byte length %d not in [%d, %d]", byteLength, minNonceByteLength, maxNonceByteLength))
	}
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", newErrorDetail(CodeNonceFormatError, "nonce generation failed", err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// ValidateNonceFormat checks a caller-supplied nonce: non-blank, 32 to 255
// characters, URL-safe alphabet only.
func ValidateNonceFormat(nonce string) error {
	if nonce == "" {
		return newError(CodeNonceFormatError, "nonce must not be blank")
	}
	if len(nonce) < minNonceChars {
		return newErrorDetail(CodeNonceFormatError, "nonce too short",
			fmt.Sprintf("%d characters, minimum %d", len(nonce), minNonceChars))
	}
	if len(nonce) > maxNonceChars {
		return newErrorDetail(CodeNonceFormatError, "nonce too long",
			fmt.Sprintf("%d characters, maximum %d", len(nonce), maxNonceChars))
	}
	for index := 0; index < len(nonce); index++ {
		if !isURLSafeNonceChar(nonce[index]) {
			return newErrorDetail(CodeNonceFormatError, "nonce contains non URL-safe character",
				fmt.Sprintf("character %q at position %d", nonce[index], index))
		}
	}
	return nil
}

func isURLSafeNonceChar(character byte) bool {
	switch {
	case character >= 'A' && character <= 'Z':
		return true
	case character >= 'a' && character <= 'z':
		return true
	case character >= '0' && character <= '9':
		return true
	case character == '-' || character == '_':
		return true
	default:
		return false
	}
}

// ValidateNonceBinding decodes the claims of the returned identity token and
// requires the nonce claim to equal expectedNonce exactly. The signature is the
// provider's concern; only the binding is checked here. Any decode failure or
// mismatch is a binding failure, since it may indicate replay or substitution.
func ValidateNonceBinding(idToken string, expectedNonce string) error {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return newErrorDetail(CodeNonceBindingError, "identity token claims could not be decoded", err.Error())
	}
	embedded, ok := claims["nonce"].(string)
	if !ok || embedded == "" {
		return newError(CodeNonceBindingError, "identity token carries no nonce claim")
	}
	if embedded != expectedNonce {
		return newError(CodeNonceBindingError, "identity token nonce does not match the requested nonce")
	}
	return nil
}
