package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mprlab/signinkit/internal/signin"
)

// CredentialReceiver is implemented by providers that accept a raw credential
// handed over by the application layer (the web platform hand-off).
type CredentialReceiver interface {
	SubmitCredential(raw string)
}

// MountSignInRoutes registers the orchestrator contract under /auth.
func MountSignInRoutes(router gin.IRouter, orchestrator *signin.Orchestrator, receiver CredentialReceiver, attempts signin.AttemptStore, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.POST("/auth/nonce", func(contextGin *gin.Context) {
		nonce, nonceErr := signin.GenerateNonce(signin.DefaultNonceByteLength)
		if nonceErr != nil {
			writeFlowError(contextGin, nonceErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"nonce": nonce})
	})

	router.POST("/auth/signin", func(contextGin *gin.Context) {
		inbound, ok := bindSignInRequest(contextGin, receiver)
		if !ok {
			return
		}
		result, signInErr := orchestrator.SignIn(contextGin.Request.Context(), inbound.Nonce)
		if signInErr != nil {
			writeFlowError(contextGin, signInErr)
			return
		}
		contextGin.JSON(http.StatusOK, result)
	})

	router.POST("/auth/signin/silent", func(contextGin *gin.Context) {
		inbound, ok := bindSignInRequest(contextGin, receiver)
		if !ok {
			return
		}
		result, signInErr := orchestrator.SignInSilently(contextGin.Request.Context(), inbound.Nonce)
		if signInErr != nil {
			writeFlowError(contextGin, signInErr)
			return
		}
		contextGin.JSON(http.StatusOK, result)
	})

	router.POST("/auth/tokens", func(contextGin *gin.Context) {
		if receiver != nil {
			var inbound signInRequest
			if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr == nil && inbound.Credential != "" {
				receiver.SubmitCredential(inbound.Credential)
			}
		}
		result, tokensErr := orchestrator.GetTokens(contextGin.Request.Context())
		if tokensErr != nil {
			writeFlowError(contextGin, tokensErr)
			return
		}
		contextGin.JSON(http.StatusOK, result)
	})

	router.POST("/auth/signout", func(contextGin *gin.Context) {
		if signOutErr := orchestrator.SignOut(contextGin.Request.Context()); signOutErr != nil {
			writeFlowError(contextGin, signOutErr)
			return
		}
		contextGin.Status(http.StatusNoContent)
	})

	router.GET("/auth/status", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"signed_in": orchestrator.IsSignedIn()})
	})

	router.GET("/auth/availability", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"available": orchestrator.Availability()})
	})

	router.GET("/auth/attempts", func(contextGin *gin.Context) {
		limit, _ := strconv.Atoi(contextGin.DefaultQuery("limit", "50"))
		records, listErr := attempts.List(contextGin.Request.Context(), limit)
		if listErr != nil {
			logger.Error("attempt listing failed",
				zap.String("code", "web.attempts.list_failed"),
				zap.Error(listErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		outbound := make([]gin.H, 0, len(records))
		for _, record := range records {
			outbound = append(outbound, gin.H{
				"attempt_id": record.AttemptID,
				"flow":       string(record.Flow),
				"outcome":    record.Outcome,
				"subject":    record.Subject,
				"observed":   record.ObservedUnix,
			})
		}
		contextGin.JSON(http.StatusOK, gin.H{"attempts": outbound})
	})
}

type signInRequest struct {
	Nonce      string `json:"nonce"`
	Credential string `json:"credential"`
}

func bindSignInRequest(contextGin *gin.Context, receiver CredentialReceiver) (signInRequest, bool) {
	var inbound signInRequest
	if contextGin.Request.ContentLength > 0 {
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return signInRequest{}, false
		}
	}
	if receiver != nil && inbound.Credential != "" {
		receiver.SubmitCredential(inbound.Credential)
	}
	return inbound, true
}

func writeFlowError(contextGin *gin.Context, err error) {
	code := signin.CodeOf(err)
	contextGin.AbortWithStatusJSON(statusForCode(code), gin.H{
		"code":    string(code),
		"message": err.Error(),
	})
}

func statusForCode(code signin.Code) int {
	switch code {
	case signin.CodeNotConfigured, signin.CodeConfigureError, signin.CodeNonceFormatError, signin.CodeUserCancelled:
		return http.StatusBadRequest
	case signin.CodeSignInRequired, signin.CodeNoUser:
		return http.StatusUnauthorized
	case signin.CodeSignInInProgress:
		return http.StatusConflict
	case signin.CodeNoActivity, signin.CodeModuleDestroyed:
		return http.StatusServiceUnavailable
	case signin.CodeNonceBindingError, signin.CodeNoAccountsAvailable:
		return http.StatusUnauthorized
	case "":
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
