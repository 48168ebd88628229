package errortypes

// Defines numeric codes for well-known errors. Errors which don't implement Coder, such
// as transport-level failures wrapped by the standard library, read as UnknownErrorCode.
const (
	UnknownErrorCode = 999
	TimeoutErrorCode = iota
	BadInputErrorCode
	BadServerResponseErrorCode
	FailedToRequestBidsErrorCode
	RejectedErrorCode
	WarningErrorCode
)

// Coder provides an error code.
type Coder interface {
	Code() int
}

// ReadCode returns the error code, or UnknownErrorCode if unavailable.
func ReadCode(err error) int {
	if e, ok := err.(Coder); ok {
		return e.Code()
	}
	return UnknownErrorCode
}
