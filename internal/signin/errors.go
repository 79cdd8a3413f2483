package signin

import (
	"errors"
	"fmt"
)

// Code identifies a stable, platform-independent failure category.
type Code string

// Taxonomy codes surfaced to callers. Codes are contract, not exception names.
const (
	CodeNotConfigured            Code = "NOT_CONFIGURED"
	CodeNoActivity               Code = "NO_ACTIVITY"
	CodeSignInInProgress         Code = "SIGN_IN_IN_PROGRESS"
	CodeNoAccountsAvailable      Code = "NO_ACCOUNTS_AVAILABLE"
	CodeSignInRequired           Code = "SIGN_IN_REQUIRED"
	CodeNoUser                   Code = "NO_USER"
	CodeSignInError              Code = "SIGN_IN_ERROR"
	CodeCredentialParseError     Code = "CREDENTIAL_PARSE_ERROR"
	CodeUnexpectedCredentialType Code = "UNEXPECTED_CREDENTIAL_TYPE"
	CodeConfigureError           Code = "CONFIGURE_ERROR"
	CodeSignOutError             Code = "SIGN_OUT_ERROR"
	CodeSignOutRequested         Code = "SIGN_OUT_REQUESTED"
	CodeModuleDestroyed          Code = "MODULE_DESTROYED"
	CodeNonceFormatError         Code = "NONCE_FORMAT_ERROR"
	CodeNonceBindingError        Code = "NONCE_BINDING_ERROR"
	CodeUserCancelled            Code = "USER_CANCELLED"
)

// ErrorRecord is the single error shape surfaced by the orchestrator. The code
// is stable across platforms; Detail may carry provider-specific text.
type ErrorRecord struct {
	Code    Code
	Message string
	Detail  string
}

// Error formats the record as code: message.
func (record *ErrorRecord) Error() string {
	if record.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", record.Code, record.Message, record.Detail)
	}
	return fmt.Sprintf("%s: %s", record.Code, record.Message)
}

func newError(code Code, message string) *ErrorRecord {
	return &ErrorRecord{Code: code, Message: message}
}

func newErrorDetail(code Code, message string, detail string) *ErrorRecord {
	return &ErrorRecord{Code: code, Message: message, Detail: detail}
}

// CodeOf extracts the taxonomy code from an orchestrator error, or empty when
// the error did not originate here.
func CodeOf(err error) Code {
	var record *ErrorRecord
	if !errors.As(err, &record) || record == nil {
		return ""
	}
	return record.Code
}
