package signin

import "strings"

// FlowType distinguishes the three credential flows. Classification depends on
// it: the same no-credential signal surfaces differently per flow.
type FlowType string

const (
	// FlowInteractive may present UI and falls back to all accounts once.
	FlowInteractive FlowType = "interactive"
	// FlowSilent is restricted to authorized accounts, no fallback.
	FlowSilent FlowType = "silent"
	// FlowTokenRefresh is silent but shapes its result as tokens.
	FlowTokenRefresh FlowType = "token_refresh"
)

// Substring fallbacks for providers that report failures as bare text rather
// than a structured kind. Matched case-insensitively, first hit wins.
var failureSubstringCodes = []struct {
	fragment string
	code     Code
}{
	{"no credential", CodeSignInError},
	{"cancel", CodeUserCancelled},
	{"parse", CodeCredentialParseError},
	{"malformed", CodeCredentialParseError},
	{"unexpected type", CodeUnexpectedCredentialType},
	{"unexpected credential", CodeUnexpectedCredentialType},
}

// classifyNoCredential maps the provider's no-credential signal onto the code
// the active flow promises its caller.
func classifyNoCredential(flow FlowType) *ErrorRecord {
	switch flow {
	case FlowSilent:
		return newError(CodeSignInRequired, "no authorized account; interactive sign-in is required")
	case FlowTokenRefresh:
		return newError(CodeNoUser, "no signed-in user to refresh tokens for")
	default:
		return newError(CodeSignInError, "no credential available")
	}
}

// classifyOutcome turns a terminal provider outcome into an ErrorRecord. Only
// non-success outcomes reach it.
func classifyOutcome(outcome CredentialOutcome, flow FlowType) *ErrorRecord {
	switch outcome.Kind {
	case OutcomeNoCredential:
		return classifyNoCredential(flow)
	case OutcomeCancelled:
		return newErrorDetail(CodeUserCancelled, "sign-in was cancelled", outcome.Detail)
	case OutcomeFailure:
		lowered := strings.ToLower(outcome.Detail)
		for _, candidate := range failureSubstringCodes {
			if strings.Contains(lowered, candidate.fragment) {
				if candidate.code == CodeSignInError && outcome.Detail != "" {
					// Text-only no-credential reports follow the same
					// flow-aware mapping as the structured kind.
					record := classifyNoCredential(flow)
					record.Detail = outcome.Detail
					return record
				}
				return newErrorDetail(candidate.code, "provider reported a failure", outcome.Detail)
			}
		}
		return newErrorDetail(CodeSignInError, "provider reported a failure", outcome.Detail)
	default:
		return newErrorDetail(CodeSignInError, "provider returned an unknown outcome", outcome.Detail)
	}
}

// isNoCredential reports whether the outcome is the no-credential signal, in
// either structured or text form. The interactive fallback keys off this.
func isNoCredential(outcome CredentialOutcome) bool {
	if outcome.Kind == OutcomeNoCredential {
		return true
	}
	return outcome.Kind == OutcomeFailure && strings.Contains(strings.ToLower(outcome.Detail), "no credential")
}
