package admezzo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"

	"github.com/buger/jsonparser"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidfuse/bidfuse-server/adapters"
	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/errortypes"
	"github.com/bidfuse/bidfuse-server/macros"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

// Admezzo bids per placement, so every impression becomes its own outbound call
// against a publisher-scoped endpoint.
type adapter struct {
	endpointTemplate *template.Template
}

// Builder builds a new instance of the Admezzo adapter for the given bidder with the given config.
func Builder(bidderName openrtb_ext.BidderName, cfg config.Adapter) (adapters.Bidder, error) {
	endpointTemplate, err := template.New("endpointTemplate").Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("unable to parse endpoint url template: %v", err)
	}
	return &adapter{endpointTemplate: endpointTemplate}, nil
}

func (a *adapter) MakeRequests(request *openrtb2.BidRequest, requestInfo *adapters.ExtraRequestInfo) ([]*adapters.RequestData, []error) {
	var requests []*adapters.RequestData
	var errs []error

	headers := http.Header{}
	headers.Add("Content-Type", "application/json;charset=utf-8")
	headers.Add("Accept", "application/json")

	// One call per impression. A malformed impression is reported and skipped;
	// it never aborts the build for its siblings.
	reqCopy := *request
	for _, imp := range request.Imp {
		admezzoExt, err := parseImpExt(&imp)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		uri, err := macros.ResolveMacros(a.endpointTemplate, macros.EndpointTemplateParams{
			PublisherID: admezzoExt.PublisherID,
			ZoneID:      admezzoExt.ZoneID,
		})
		if err != nil {
			errs = append(errs, &errortypes.BadInput{
				Message: fmt.Sprintf("Unable to resolve endpoint for imp %s: %v", imp.ID, err),
			})
			continue
		}

		impCopy := imp
		impCopy.TagID = admezzoExt.ZoneID
		reqCopy.Imp = []openrtb2.Imp{impCopy}

		body, err := json.Marshal(&reqCopy)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		requests = append(requests, &adapters.RequestData{
			Method:  "POST",
			Uri:     uri,
			Body:    body,
			Headers: headers,
			ImpIDs:  []string{imp.ID},
		})
	}

	return requests, errs
}

// parseImpExt pulls the admezzo params out of imp.ext.bidder without unmarshalling
// the whole two-level ext envelope.
func parseImpExt(imp *openrtb2.Imp) (*openrtb_ext.ExtImpAdmezzo, error) {
	bidderExt, dataType, _, err := jsonparser.Get(imp.Ext, "bidder")
	if err != nil || dataType != jsonparser.Object {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Missing bidder ext on imp %s", imp.ID),
		}
	}

	var admezzoExt openrtb_ext.ExtImpAdmezzo
	if err := json.Unmarshal(bidderExt, &admezzoExt); err != nil {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Invalid admezzo params on imp %s: %v", imp.ID, err),
		}
	}
	if admezzoExt.PublisherID == "" {
		return nil, &errortypes.BadInput{
			Message: fmt.Sprintf("Missing publisherId on imp %s", imp.ID),
		}
	}
	return &admezzoExt, nil
}

func (a *adapter) MakeBids(internalRequest *openrtb2.BidRequest, externalRequest *adapters.RequestData, response *adapters.ResponseData) (*adapters.BidderResponse, []error) {
	if adapters.IsResponseStatusCodeNoContent(response) {
		return nil, nil
	}

	if err := adapters.CheckResponseStatusCodeForErrors(response); err != nil {
		return nil, []error{err}
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
	for _, sb := range bidResp.SeatBid {
		for i := range sb.Bid {
			bidType, err := adapters.ResolveBidType(&sb.Bid[i], internalRequest.Imp)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			bidResponse.Bids = append(bidResponse.Bids, &adapters.TypedBid{
				Bid:     &sb.Bid[i],
				BidType: bidType,
			})
		}
	}
	return bidResponse, errs
}
