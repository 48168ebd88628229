package openrtb_ext

import (
	"github.com/prebid/openrtb/v20/openrtb2"
)

// GetImpIDs returns the ids of the given imps, preserving order.
func GetImpIDs(imps []openrtb2.Imp) []string {
	impIDs := make([]string, len(imps))
	for i := range imps {
		impIDs[i] = imps[i].ID
	}
	return impIDs
}

// ExtImpAdmezzo defines the contract for request.imp[i].ext.bidder for the admezzo adapter.
type ExtImpAdmezzo struct {
	PublisherID string `json:"publisherId"`
	ZoneID      string `json:"zoneId,omitempty"`
}

// ExtImpBidpulse defines the contract for request.imp[i].ext.bidder for the bidpulse adapter.
type ExtImpBidpulse struct {
	AccountID string `json:"accountId"`
	PodID     string `json:"podId,omitempty"`
}
