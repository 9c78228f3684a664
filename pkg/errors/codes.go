package errors

import (
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal      ErrorCode = "COMMON_001"
	ErrCodeBadRequest    ErrorCode = "COMMON_002"
	ErrCodeNotFound      ErrorCode = "COMMON_005"
	ErrCodeConflict      ErrorCode = "COMMON_006"
	ErrCodeTimeout       ErrorCode = "COMMON_009"
	ErrCodeValidation    ErrorCode = "COMMON_010"
	ErrCodeSerialization ErrorCode = "COMMON_011"
	ErrCodeCanceled      ErrorCode = "COMMON_017"
)

// Aliases used throughout the code base.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeCanceled     = ErrCodeCanceled
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")

	CodeUnknownElement      = ErrCodeUnknownElement
	CodeMalformedFormula    = ErrCodeMalformedFormula
	CodeAtomIndexOutOfRange = ErrCodeAtomIndexOutOfRange
	CodeBondNotFound        = ErrCodeBondNotFound
	CodeValenceExceeded     = ErrCodeValenceExceeded
	CodeOracleFailure       = ErrCodeOracleFailure
	CodeSinkWrite           = ErrCodeSinkWrite
)

// Configuration Error Codes
const (
	ErrCodeConfigMissing ErrorCode = "CFG_001"
	ErrCodeConfigInvalid ErrorCode = "CFG_002"
	ErrCodeFlagMissing   ErrorCode = "CFG_003"
)

// Molecule Module Error Codes
const (
	ErrCodeUnknownElement      ErrorCode = "MOL_001"
	ErrCodeMalformedFormula    ErrorCode = "MOL_002"
	ErrCodeAtomIndexOutOfRange ErrorCode = "MOL_003"
	ErrCodeBondNotFound        ErrorCode = "MOL_004"
	ErrCodeValenceExceeded     ErrorCode = "MOL_005"
	ErrCodeEmptyFormula        ErrorCode = "MOL_006"
)

// Generation Module Error Codes
const (
	ErrCodeOracleFailure ErrorCode = "GEN_001"
	ErrCodeSinkWrite     ErrorCode = "GEN_002"
	ErrCodeIdentitySet   ErrorCode = "GEN_003"
)

// Infrastructure Error Codes
const (
	ErrCodeCacheError       ErrorCode = "INF_001"
	ErrCodeDatabaseError    ErrorCode = "INF_002"
	ErrCodeMessagingError   ErrorCode = "INF_003"
	ErrCodeStorageError     ErrorCode = "INF_004"
	ErrCodeMetricsError     ErrorCode = "INF_005"
	ErrCodeConnectionFailed ErrorCode = "INF_006"
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:      "internal error",
	ErrCodeBadRequest:    "bad request",
	ErrCodeNotFound:      "resource not found",
	ErrCodeConflict:      "conflict",
	ErrCodeTimeout:       "operation timed out",
	ErrCodeValidation:    "validation failed",
	ErrCodeSerialization: "serialization failed",
	ErrCodeCanceled:      "operation canceled",

	ErrCodeConfigMissing: "configuration file not found",
	ErrCodeConfigInvalid: "invalid configuration",
	ErrCodeFlagMissing:   "required flag missing",

	ErrCodeUnknownElement:      "unknown element symbol",
	ErrCodeMalformedFormula:    "malformed atom token",
	ErrCodeAtomIndexOutOfRange: "atom index out of range",
	ErrCodeBondNotFound:        "bond not found",
	ErrCodeValenceExceeded:     "valence capacity exceeded",
	ErrCodeEmptyFormula:        "empty molecular formula",

	ErrCodeOracleFailure: "oracle failure",
	ErrCodeSinkWrite:     "failed to write structure",
	ErrCodeIdentitySet:   "identity set failure",

	ErrCodeCacheError:       "cache operation failed",
	ErrCodeDatabaseError:    "database operation failed",
	ErrCodeMessagingError:   "messaging operation failed",
	ErrCodeStorageError:     "object storage operation failed",
	ErrCodeMetricsError:     "metrics export failed",
	ErrCodeConnectionFailed: "connection failed",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
