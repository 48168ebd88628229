package exchange

import (
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/bidfuse/bidfuse-server/adapters"
	"github.com/bidfuse/bidfuse-server/adapters/admezzo"
	"github.com/bidfuse/bidfuse-server/adapters/bidpulse"
	"github.com/bidfuse/bidfuse-server/adapters/generic"
	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

// coreBidderBuilders is segregated to its own spot to make a simple and clean location
// for each adapter to register itself. No wading through engine code to find it.
func coreBidderBuilders() map[openrtb_ext.BidderName]adapters.Builder {
	return map[openrtb_ext.BidderName]adapters.Builder{
		openrtb_ext.BidderAdmezzo:  admezzo.Builder,
		openrtb_ext.BidderBidpulse: bidpulse.Builder,
		openrtb_ext.BidderGeneric:  generic.Builder,
	}
}

// BuildBidders constructs every configured, enabled adapter exactly once. Any
// construction failure aborts the whole build: a process must never start serving
// with a partially constructed bidder in the registry.
func BuildBidders(adapterConfig map[string]config.Adapter, builders map[openrtb_ext.BidderName]adapters.Builder) (map[openrtb_ext.BidderName]adapters.Bidder, error) {
	bidders := make(map[openrtb_ext.BidderName]adapters.Bidder, len(adapterConfig))
	var errs []error

	for name, cfg := range adapterConfig {
		bidderName, ok := openrtb_ext.BidderMap[strings.ToLower(name)]
		if !ok {
			errs = append(errs, fmt.Errorf("%v: unknown bidder", name))
			continue
		}
		if cfg.Disabled {
			glog.Infof("bidder %s is disabled, skipping", bidderName)
			continue
		}

		builder, ok := builders[bidderName]
		if !ok {
			errs = append(errs, fmt.Errorf("%v: builder not registered", bidderName))
			continue
		}

		bidder, err := builder(bidderName, cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%v: %v", bidderName, err))
			continue
		}
		if bidder == nil {
			errs = append(errs, fmt.Errorf("%v: builder returned nil bidder", bidderName))
			continue
		}
		bidders[bidderName] = bidder
	}

	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return nil, fmt.Errorf("Failed to init bidder adapters: %s", strings.Join(msgs, "; "))
	}
	return bidders, nil
}
