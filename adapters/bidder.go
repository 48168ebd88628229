package adapters

import (
	"encoding/json"
	"net/http"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

// Bidder describes how to connect to an external demand server.
// Implementations must be safe for concurrent use: the exchange shares one instance
// across every auction for the life of the process.
type Bidder interface {
	// MakeRequests makes the HTTP requests which should be made to fetch bids.
	//
	// Bidder implementations can assume that the incoming BidRequest has all "optional"
	// fields set to non-nil values where the auction endpoint guarantees it, and that
	// the request is read-only for the duration of the auction.
	//
	// nil return values are acceptable, but nil elements *inside* those slices are not.
	//
	// The errors should contain a list of errors which explain why this bidder's bids
	// will be "subpar" in some way. For example: the request contained ad types which
	// this bidder doesn't support. A single malformed impression must produce one error
	// and be skipped; it must never abort the whole build.
	//
	// If the error is caused by bad user input, return an errortypes.BadInput.
	MakeRequests(request *openrtb2.BidRequest, reqInfo *ExtraRequestInfo) ([]*RequestData, []error)

	// MakeBids unpacks the server's response into Bids.
	//
	// The request here is the internal (retained) request which produced externalRequest.
	// It is passed back so that bids can be re-correlated to the impressions which
	// produced them without re-parsing the wire body.
	//
	// nil return values are acceptable, but nil elements *inside* those slices are not.
	//
	// If the error was caused by bad user input, return an errortypes.BadInput.
	// If the error was caused by a bad server response, return an errortypes.BadServerResponse.
	MakeBids(internalRequest *openrtb2.BidRequest, externalRequest *RequestData, response *ResponseData) (*BidderResponse, []error)
}

// Builder builds a new instance of any Bidder. The name and config are specific to
// this bidder. Builders run once at startup; a returned error halts the process
// rather than leaving a half-constructed bidder in the registry.
type Builder func(bidderName openrtb_ext.BidderName, cfg config.Adapter) (Bidder, error)

// RequestData packages together the fields needed to make an http.Request.
// It is immutable once built; the exchange treats it as a value.
type RequestData struct {
	Method  string
	Uri     string
	Body    []byte
	Headers http.Header

	// ImpIDs retains the ids of the impressions this call covers, so that call-level
	// failures can be attributed without parsing Body again.
	ImpIDs []string
}

// ResponseData packages together information from the server's http.Response.
//
// This exists so that core code can treat all adapters uniformly, regardless of
// which HTTP library ends up issuing the call.
type ResponseData struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// TypedBid packages the openrtb2.Bid with the media type resolved for it.
//
// TypedBid.Bid.Ext will become "response.seatbid[i].bid[j].ext.bidder" in the final
// response, and TypedBid.BidType will become "response.seatbid[i].bid[j].ext.prebid.type".
type TypedBid struct {
	Bid     *openrtb2.Bid
	BidType openrtb_ext.BidType
}

// BidderResponse carries all the bids parsed from one call's response.
// Bid order within the response is preserved.
type BidderResponse struct {
	Currency string
	Bids     []*TypedBid
}

// NewBidderResponseWithBidsCapacity create a new BidderResponse initialising the bids
// array capacity and the default currency value to "USD".
func NewBidderResponseWithBidsCapacity(bidsCapacity int) *BidderResponse {
	return &BidderResponse{
		Currency: "USD",
		Bids:     make([]*TypedBid, 0, bidsCapacity),
	}
}

// NewBidderResponse create a new BidderResponse initialising the bids array
// and the default currency value to "USD".
func NewBidderResponse() *BidderResponse {
	return NewBidderResponseWithBidsCapacity(0)
}

// ExtraRequestInfo carries auction-scoped facts an adapter may need while building
// requests. It never carries mutable shared state.
type ExtraRequestInfo struct {
	// GlobalPrivacyControlHeader mirrors the Sec-GPC header of the inbound request.
	GlobalPrivacyControlHeader string
}

// ExtImpBidder can be used by Bidders to unmarshal any request.imp[i].ext.
type ExtImpBidder struct {
	// Prebid carries the cross-bidder options block. Adapters must not interpret
	// it; the endpoint and exchange own its semantics.
	Prebid json.RawMessage `json:"prebid,omitempty"`

	// Bidder contains the bidder-specific extension. Each bidder should unmarshal
	// this using their corresponding openrtb_ext.ExtImp{Bidder} struct.
	//
	// For example, if the bidder is "admezzo", then this field will be unmarshalled
	// into an openrtb_ext.ExtImpAdmezzo.
	Bidder json.RawMessage `json:"bidder"`
}
