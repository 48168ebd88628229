package adapters

import (
	"fmt"
	"net/http"

	"github.com/bidfuse/bidfuse-server/errortypes"
)

// CheckResponseStatusCodeForErrors checks whether the status code is a known error
// per the shared status policy. 400 is attributed to the caller; anything else
// which isn't a 200 reads as a server fault. A 204 should be handled first with
// IsResponseStatusCodeNoContent since it is a valid no-bid outcome, not an error.
func CheckResponseStatusCodeForErrors(response *ResponseData) error {
	if response.StatusCode == http.StatusBadRequest {
		return &errortypes.BadInput{
			Message: fmt.Sprintf("Unexpected status code: %d. Bad request from publisher. Run with request.debug = 1 for more info.", response.StatusCode),
		}
	}

	if response.StatusCode != http.StatusOK {
		return &errortypes.BadServerResponse{
			Message: fmt.Sprintf("Unexpected status code: %d. Run with request.debug = 1 for more info.", response.StatusCode),
		}
	}

	return nil
}

// IsResponseStatusCodeNoContent returns true if the response is an explicit no-bid.
func IsResponseStatusCodeNoContent(response *ResponseData) bool {
	return response.StatusCode == http.StatusNoContent
}
