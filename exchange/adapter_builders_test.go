package exchange

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidfuse/bidfuse-server/adapters"
	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

func TestCoreBidderBuildersComplete(t *testing.T) {
	builders := coreBidderBuilders()
	for _, name := range openrtb_ext.CoreBidderNames() {
		assert.Contains(t, builders, name, "every registered bidder needs a builder")
	}
}

func TestBuildBidders(t *testing.T) {
	fakeBidder := &mockBidder{}
	okBuilder := func(name openrtb_ext.BidderName, cfg config.Adapter) (adapters.Bidder, error) {
		return fakeBidder, nil
	}
	failBuilder := func(name openrtb_ext.BidderName, cfg config.Adapter) (adapters.Bidder, error) {
		return nil, errors.New("bad endpoint template")
	}
	nilBuilder := func(name openrtb_ext.BidderName, cfg config.Adapter) (adapters.Bidder, error) {
		return nil, nil
	}

	testCases := []struct {
		description    string
		adapterConfig  map[string]config.Adapter
		builders       map[openrtb_ext.BidderName]adapters.Builder
		expectedErrors []string
		expectedCount  int
	}{
		{
			description:   "Success",
			adapterConfig: map[string]config.Adapter{"generic": {Endpoint: "http://bids.example.com"}},
			builders:      map[openrtb_ext.BidderName]adapters.Builder{openrtb_ext.BidderGeneric: okBuilder},
			expectedCount: 1,
		},
		{
			description:   "Case insensitive names",
			adapterConfig: map[string]config.Adapter{"GENERIC": {Endpoint: "http://bids.example.com"}},
			builders:      map[openrtb_ext.BidderName]adapters.Builder{openrtb_ext.BidderGeneric: okBuilder},
			expectedCount: 1,
		},
		{
			description:   "Disabled adapter skipped without error",
			adapterConfig: map[string]config.Adapter{"generic": {Disabled: true}},
			builders:      map[openrtb_ext.BidderName]adapters.Builder{openrtb_ext.BidderGeneric: okBuilder},
			expectedCount: 0,
		},
		{
			description:    "Unknown bidder",
			adapterConfig:  map[string]config.Adapter{"nosuchbidder": {}},
			builders:       map[openrtb_ext.BidderName]adapters.Builder{},
			expectedErrors: []string{"nosuchbidder: unknown bidder"},
		},
		{
			description:    "Builder failure aborts the build",
			adapterConfig:  map[string]config.Adapter{"generic": {}},
			builders:       map[openrtb_ext.BidderName]adapters.Builder{openrtb_ext.BidderGeneric: failBuilder},
			expectedErrors: []string{"generic: bad endpoint template"},
		},
		{
			description:    "Nil bidder rejected",
			adapterConfig:  map[string]config.Adapter{"generic": {}},
			builders:       map[openrtb_ext.BidderName]adapters.Builder{openrtb_ext.BidderGeneric: nilBuilder},
			expectedErrors: []string{"generic: builder returned nil bidder"},
		},
	}

	for _, test := range testCases {
		t.Run(test.description, func(t *testing.T) {
			bidders, err := BuildBidders(test.adapterConfig, test.builders)

			if len(test.expectedErrors) > 0 {
				require.Error(t, err)
				assert.Nil(t, bidders)
				for _, msg := range test.expectedErrors {
					assert.Contains(t, err.Error(), msg)
				}
				return
			}
			require.NoError(t, err)
			assert.Len(t, bidders, test.expectedCount)
		})
	}
}
