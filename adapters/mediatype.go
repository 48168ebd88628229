package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidfuse/bidfuse-server/errortypes"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

// ResolveBidType resolves the media type of a response bid.
//
// Resolution order:
//  1. bid.ext.prebid.type, when the response declares one, is authoritative.
//  2. An ext block which is present but malformed fails only this bid: the caller
//     should record the error and keep processing sibling bids from the same response.
//  3. Otherwise the type is inferred from the originating impression's declared
//     formats via InferBidType.
func ResolveBidType(bid *openrtb2.Bid, imps []openrtb2.Imp) (openrtb_ext.BidType, error) {
	if len(bid.Ext) > 0 {
		var bidExt openrtb_ext.ExtBid
		if err := json.Unmarshal(bid.Ext, &bidExt); err != nil {
			return "", &errortypes.BadInput{
				Message: fmt.Sprintf("Malformed ext on bid %s: %v", bid.ID, err),
			}
		}
		if bidExt.Prebid != nil {
			if bidExt.Prebid.Type == "" {
				return "", &errortypes.BadInput{
					Message: fmt.Sprintf("Missing media type declaration on bid %s", bid.ID),
				}
			}
			bidType, err := openrtb_ext.ParseBidType(string(bidExt.Prebid.Type))
			if err != nil {
				return "", &errortypes.BadInput{
					Message: fmt.Sprintf("Invalid media type declaration on bid %s: %v", bid.ID, err),
				}
			}
			return bidType, nil
		}
	}

	return InferBidType(bid.ImpID, imps)
}

// InferBidType infers a bid's media type from the formats declared on the impression
// which produced it. An impression declaring exactly one format resolves to that
// format; one declaring none resolves to banner, which legacy exchanges rely on.
// Impressions declaring several formats concurrently cannot be resolved here: the
// correct precedence is adapter-specific, so adapters either document their own
// precedence or require an explicit bid.ext.prebid.type override.
func InferBidType(impID string, imps []openrtb2.Imp) (openrtb_ext.BidType, error) {
	for i := range imps {
		if imps[i].ID != impID {
			continue
		}

		var impType openrtb_ext.BidType
		declared := 0
		if imps[i].Banner != nil {
			impType = openrtb_ext.BidTypeBanner
			declared++
		}
		if imps[i].Video != nil {
			impType = openrtb_ext.BidTypeVideo
			declared++
		}
		if imps[i].Audio != nil {
			impType = openrtb_ext.BidTypeAudio
			declared++
		}
		if imps[i].Native != nil {
			impType = openrtb_ext.BidTypeNative
			declared++
		}

		switch declared {
		case 0:
			return openrtb_ext.BidTypeBanner, nil
		case 1:
			return impType, nil
		default:
			return "", &errortypes.BadInput{
				Message: fmt.Sprintf("Impression %s declares multiple media types and the bid carries no explicit type", impID),
			}
		}
	}

	return "", &errortypes.BadInput{
		Message: fmt.Sprintf("Failed to find impression %s", impID),
	}
}
