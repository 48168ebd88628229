package bidpulse

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidfuse/bidfuse-server/adapters"
	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/errortypes"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

type adapter struct {
	endpoint string
}

type extBid struct {
	Prebid *openrtb_ext.ExtBidPrebid `json:"prebid"`
}

// Builder builds a new instance of the Bidpulse adapter for the given bidder with the given config.
func Builder(bidderName openrtb_ext.BidderName, cfg config.Adapter) (adapters.Bidder, error) {
	bidder := &adapter{
		endpoint: cfg.Endpoint,
	}
	return bidder, nil
}

// MakeRequests sends the whole request in one gzip-compressed call. Bidpulse serves
// mixed-format placements and always declares the media type on its bids, so no
// per-impression splitting is needed. The call is scoped to the account declared on
// the first impression; bidpulse requires all imps of a request to share one account.
func (a *adapter) MakeRequests(request *openrtb2.BidRequest, requestInfo *adapters.ExtraRequestInfo) ([]*adapters.RequestData, []error) {
	if len(request.Imp) == 0 {
		return nil, nil
	}

	params, err := parseImpParams(&request.Imp[0])
	if err != nil {
		return nil, []error{err}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, []error{err}
	}

	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")
	if requestInfo != nil && requestInfo.GlobalPrivacyControlHeader == "1" {
		headers.Add("Sec-GPC", requestInfo.GlobalPrivacyControlHeader)
	}

	var bodyBuf bytes.Buffer
	gz := gzip.NewWriter(&bodyBuf)
	if _, err = gz.Write(body); err == nil {
		if err = gz.Close(); err == nil {
			body = bodyBuf.Bytes()
			headers.Add("Content-Encoding", "gzip")
			// Go already sets the `Accept-Encoding: gzip` header. Never add it manually,
			// or Go won't decompress the response.
		}
	}

	return []*adapters.RequestData{{
		Method:  "POST",
		Uri:     a.endpoint + "?aid=" + url.QueryEscape(params.AccountID),
		Body:    body,
		Headers: headers,
		ImpIDs:  openrtb_ext.GetImpIDs(request.Imp),
	}}, nil
}

// parseImpParams unwraps imp.ext.bidder into the bidpulse params.
func parseImpParams(imp *openrtb2.Imp) (*openrtb_ext.ExtImpBidpulse, error) {
	var bidderExt adapters.ExtImpBidder
	if err := json.Unmarshal(imp.Ext, &bidderExt); err != nil {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Missing bidder ext on imp %s", imp.ID),
		}
	}

	var params openrtb_ext.ExtImpBidpulse
	if err := json.Unmarshal(bidderExt.Bidder, &params); err != nil {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Invalid bidpulse params on imp %s: %v", imp.ID, err),
		}
	}
	if params.AccountID == "" {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Missing accountId on imp %s", imp.ID),
		}
	}
	return &params, nil
}

const unexpectedStatusCodeFormat = "Unexpected status code: %d. Run with request.debug = 1 for more info"

func (a *adapter) MakeBids(internalRequest *openrtb2.BidRequest, externalRequest *adapters.RequestData, response *adapters.ResponseData) (*adapters.BidderResponse, []error) {
	switch response.StatusCode {
	case http.StatusOK:
		break
	case http.StatusNoContent:
		return nil, nil
	case http.StatusForbidden:
		// Bidpulse signals an explicit decline for the whole request this way.
		return nil, []error{&errortypes.Rejected{
			Message: fmt.Sprintf("Bidder declined the request: status %d", response.StatusCode),
		}}
	case http.StatusBadRequest:
		return nil, []error{&errortypes.BadInput{
			Message: fmt.Sprintf(unexpectedStatusCodeFormat, response.StatusCode),
		}}
	default:
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf(unexpectedStatusCodeFormat, response.StatusCode),
		}}
	}

	var bidResp openrtb2.BidResponse
	if err := json.Unmarshal(response.Body, &bidResp); err != nil {
		return nil, []error{&errortypes.BadServerResponse{
			Message: fmt.Sprintf("Bad server response: %v", err),
		}}
	}

	var errs []error
	bidResponse := adapters.NewBidderResponseWithBidsCapacity(len(internalRequest.Imp))
	if bidResp.Cur != "" {
		bidResponse.Currency = bidResp.Cur
	}
	for _, seatBid := range bidResp.SeatBid {
		for i := range seatBid.Bid {
			bid := seatBid.Bid[i]

			// The declared type on the bid ext is the only trusted source here:
			// bidpulse placements are routinely multi-format, so inference from the
			// impression would be a guess.
			activeExt := &extBid{}
			if err := json.Unmarshal(bid.Ext, activeExt); err != nil || activeExt.Prebid == nil || activeExt.Prebid.Type == "" {
				errs = append(errs, &errortypes.BadInput{
					Message: fmt.Sprintf("Missing media type declaration on bid %s", bid.ID),
				})
				continue
			}
			bidType, err := openrtb_ext.ParseBidType(string(activeExt.Prebid.Type))
			if err != nil {
				errs = append(errs, &errortypes.BadInput{
					Message: fmt.Sprintf("Invalid media type declaration on bid %s: %v", bid.ID, err),
				})
				continue
			}

			bidResponse.Bids = append(bidResponse.Bids, &adapters.TypedBid{
				Bid:     &seatBid.Bid[i],
				BidType: bidType,
			})
		}
	}
	return bidResponse, errs
}
