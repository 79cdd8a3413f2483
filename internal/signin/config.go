package signin

import (
	"strings"

	"go.uber.org/zap"
)

// DefaultScopes are requested when Configure receives no explicit scope list.
var DefaultScopes = []string{"openid", "profile", "email"}

const googleClientIDSuffix = ".apps.googleusercontent.com"

// Config holds the orchestrator configuration installed by Configure. It is
// replaced wholesale on a later Configure call and cleared on SignOut and Close.
type Config struct {
	// ClientID is the OAuth client identifier the provider should mint tokens for.
	ClientID string
	// Scopes defaults to DefaultScopes when empty.
	Scopes []string
	// OfflineAccess requests a server auth code alongside the identity token.
	OfflineAccess bool
}

func normalizeConfig(configuration Config, logger *zap.Logger) (Config, *ErrorRecord) {
	clientID := strings.TrimSpace(configuration.ClientID)
	if clientID == "" {
		return Config{}, newError(CodeConfigureError, "client id must not be empty")
	}
	// A malformed client id is warned about but accepted; the provider is the
	// authority on whether it can serve the id.
	if !strings.HasSuffix(clientID, googleClientIDSuffix) {
		logger.Warn("client id does not look like a web client id",
			zap.String("code", "signin.configure.suspicious_client_id"),
			zap.String("client_id", clientID))
	}
	scopes := configuration.Scopes
	if len(scopes) == 0 {
		scopes = append([]string(nil), DefaultScopes...)
	}
	return Config{
		ClientID:      clientID,
		Scopes:        scopes,
		OfflineAccess: configuration.OfflineAccess,
	}, nil
}
