package openrtb_ext

// ExtBidResponse defines the contract for bidresponse.ext
type ExtBidResponse struct {
	// Errors defines the contract for bidresponse.ext.errors
	Errors map[BidderName][]ExtBidderMessage `json:"errors,omitempty"`
	// ResponseTimeMillis defines the contract for bidresponse.ext.responsetimemillis
	ResponseTimeMillis map[BidderName]int `json:"responsetimemillis,omitempty"`
	// RequestTimeoutMillis returns the timeout used in the auction.
	// Clients can run one auction, and then use this to set better connection timeouts on future requests.
	RequestTimeoutMillis int64 `json:"tmaxrequest,omitempty"`
}

// ExtBidderMessage defines an error object to be returned, consisting of a machine
// readable error code and a human readable error message string.
type ExtBidderMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
