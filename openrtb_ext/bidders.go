package openrtb_ext

// BidderName refers to a core bidder id or an alias id.
type BidderName string

// Names of the core bidders. These names *must* match the bidder code used by publishers
// in request.imp[i].ext, and the keys of the adapters section in the app config.
const (
	BidderAdmezzo  BidderName = "admezzo"
	BidderBidpulse BidderName = "bidpulse"
	BidderGeneric  BidderName = "generic"
)

func (name BidderName) String() string {
	return string(name)
}

// CoreBidderNames returns a slice of all the core bidder names, in no particular order.
func CoreBidderNames() []BidderName {
	return []BidderName{
		BidderAdmezzo,
		BidderBidpulse,
		BidderGeneric,
	}
}

// BidderMap maps a lowercase bidder code to its BidderName, for request validation.
var BidderMap = map[string]BidderName{
	"admezzo":  BidderAdmezzo,
	"bidpulse": BidderBidpulse,
	"generic":  BidderGeneric,
}
