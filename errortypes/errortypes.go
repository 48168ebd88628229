package errortypes

// Timeout should be used to flag that a bidder failed to return a response because the
// auction deadline expired before a result was received.
//
// Timeouts will not be written to the app log, since they are not an actionable item for
// the server hosts.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

// BadInput should be used when returning errors which are caused by bad input.
// It should _not_ be used if the error is a server-side issue (e.g. failed to send the
// external request).
//
// BadInputs will not be written to the app log, since they are not an actionable item for
// the server hosts.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

// BadServerResponse should be used when returning errors which are caused by bad or
// unexpected behavior on the remote server.
//
// For example:
//
//   - The external server responded with a 500
//   - The external server gave a malformed or unexpected response.
//
// These should not be used to log _connection_ errors (e.g. "couldn't find host"), which
// may indicate config issues for the host company.
type BadServerResponse struct {
	Message string
}

func (err *BadServerResponse) Error() string {
	return err.Message
}

func (err *BadServerResponse) Code() int {
	return BadServerResponseErrorCode
}

// Rejected should be used when an exchange explicitly declined to bid, e.g. through a
// no-bid status signaled on the response.
type Rejected struct {
	Message string
}

func (err *Rejected) Error() string {
	return err.Message
}

func (err *Rejected) Code() int {
	return RejectedErrorCode
}

// FailedToRequestBids is an error to cover the case where an adapter failed to generate
// any http requests to get bids, but also failed to generate any error messages explaining
// why. This should not happen in practice and will signal that an adapter is poorly coded.
type FailedToRequestBids struct {
	Message string
}

func (err *FailedToRequestBids) Error() string {
	return err.Message
}

func (err *FailedToRequestBids) Code() int {
	return FailedToRequestBidsErrorCode
}

// Warning is a generic non-fatal error.
type Warning struct {
	Message string
}

func (err *Warning) Error() string {
	return err.Message
}

func (err *Warning) Code() int {
	return WarningErrorCode
}
