package exchange

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/prebid/openrtb/v20/openrtb2"
	"golang.org/x/net/context/ctxhttp"

	"github.com/bidfuse/bidfuse-server/adapters"
	"github.com/bidfuse/bidfuse-server/errortypes"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

// AdaptedBidder defines the contract needed to participate in an auction within the exchange.
//
// This interface exists to help segregate core auction logic.
//
// Any logic which can be done _within a single seat_ goes inside one of these.
// Any logic which _requires responses from all seats_ goes inside the exchange.
type AdaptedBidder interface {
	// requestBid fetches bids for the given request.
	//
	// An AdaptedBidder returns the seat's bids alongside the errors which made them
	// "less than ideal". Common examples include:
	//
	// 1. Connection issues.
	// 2. Imps with media types which this bidder doesn't support.
	// 3. The context timeout expired before all expected bids were returned.
	// 4. The server sent back an unexpected response, so some bids were ignored.
	//
	// Errors become part of the seat result as data; they are never propagated
	// across adapter boundaries.
	requestBid(ctx context.Context, request *openrtb2.BidRequest, name openrtb_ext.BidderName, reqInfo *adapters.ExtraRequestInfo) *SeatResult
}

// SeatResult is one adapter's aggregated outcome for one auction: its bids, in
// call-completion order (response order within a call), and every recoverable error
// met along the way. The exchange owns these exclusively; no adapter ever sees
// another adapter's SeatResult.
type SeatResult struct {
	Bidder   openrtb_ext.BidderName
	Currency string
	Bids     []*adapters.TypedBid
	Errors   []error

	// ResponseTimeMillis is how long the adapter took to resolve all its calls.
	// Filled in by the exchange, not by the adapter.
	ResponseTimeMillis int
}

// AdaptBidder wraps an adapters.Bidder so it can run inside the exchange.
//
// The name refers to the "Adapter" architecture pattern, and should not be confused
// with a bidder adapter: this wrapper owns all transport concerns so that concrete
// adapters stay pure request-builders and response-parsers.
func AdaptBidder(bidder adapters.Bidder, client *http.Client) AdaptedBidder {
	return &bidderAdapter{
		Bidder: bidder,
		Client: client,
	}
}

type bidderAdapter struct {
	Bidder adapters.Bidder
	Client *http.Client
}

func (bidder *bidderAdapter) requestBid(ctx context.Context, request *openrtb2.BidRequest, name openrtb_ext.BidderName, reqInfo *adapters.ExtraRequestInfo) *SeatResult {
	reqData, errs := bidder.Bidder.MakeRequests(request, reqInfo)

	seat := &SeatResult{
		Bidder:   name,
		Currency: "USD",
		Bids:     make([]*adapters.TypedBid, 0, len(reqData)),
		Errors:   errs,
	}

	if len(reqData) == 0 {
		// An adapter which got impressions but produced neither requests nor errors
		// is broken; surface that instead of reporting a silent no-bid.
		if len(request.Imp) > 0 && len(errs) == 0 {
			seat.Errors = append(seat.Errors, &errortypes.FailedToRequestBids{
				Message: "The adapter failed to generate any bid requests, but also failed to generate an error explaining why",
			})
		}
		return seat
	}

	for i := 0; i < len(reqData); i++ {
		if reqData[i].Headers != nil {
			reqData[i].Headers = reqData[i].Headers.Clone()
		} else {
			reqData[i].Headers = http.Header{}
		}
		reqData[i].Headers.Add("X-Openrtb-Version", "2.5")
	}

	// Make any HTTP requests in parallel.
	// If the bidder only needs to make one, save some cycles by just using the current one.
	responseChannel := make(chan *httpCallInfo, len(reqData))
	if len(reqData) == 1 {
		responseChannel <- bidder.doRequest(ctx, reqData[0])
	} else {
		for _, oneReqData := range reqData {
			go func(data *adapters.RequestData) {
				responseChannel <- bidder.doRequest(ctx, data)
			}(oneReqData) // Method arg avoids a race condition on oneReqData
		}
	}

	// If the bidder made multiple requests, we still want them to enter as many bids as
	// possible... even if the timeout occurs sometime halfway through.
	for i := 0; i < len(reqData); i++ {
		httpInfo := <-responseChannel

		if httpInfo.err == nil {
			bidResponse, moreErrs := bidder.Bidder.MakeBids(request, httpInfo.request, httpInfo.response)
			seat.Errors = append(seat.Errors, moreErrs...)
			if bidResponse != nil {
				if bidResponse.Currency != "" {
					seat.Currency = bidResponse.Currency
				}
				seat.Bids = append(seat.Bids, bidResponse.Bids...)
			}
		} else {
			seat.Errors = append(seat.Errors, httpInfo.err)
		}
	}

	return seat
}

// doRequest makes a request, handles the response, and returns the data needed by the
// Bidder interface. A call resolves exactly once: a response which arrives after the
// deadline is discarded by the transport, never re-surfaced into a finished seat.
func (bidder *bidderAdapter) doRequest(ctx context.Context, req *adapters.RequestData) *httpCallInfo {
	httpReq, err := http.NewRequest(req.Method, req.Uri, bytes.NewBuffer(req.Body))
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	httpReq.Header = req.Headers

	httpResp, err := ctxhttp.Do(ctx, bidder.Client, httpReq)
	if err != nil {
		if err == context.DeadlineExceeded {
			err = &errortypes.Timeout{Message: err.Error()}
		}
		// Transport-level failures (connection refused, DNS, TLS) stay unclassified
		// and read as the generic error code.
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &httpCallInfo{
			request: req,
			err:     err,
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 400 {
		err = &errortypes.BadServerResponse{
			Message: "Server responded with failure status: " + httpResp.Status + ". Set request.test = 1 for debugging info.",
		}
	}

	return &httpCallInfo{
		request: req,
		response: &adapters.ResponseData{
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
			Headers:    httpResp.Header,
		},
		err: err,
	}
}

// httpCallInfo resolves to exactly one of two shapes: a success carrying the response
// with err == nil, or a failure carrying only the classified error. MakeBids is only
// ever invoked on the success shape.
type httpCallInfo struct {
	request  *adapters.RequestData
	response *adapters.ResponseData
	err      error
}
