package exchange

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prebid/openrtb/v20/openrtb2"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidfuse/bidfuse-server/adapters"
	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/errortypes"
	"github.com/bidfuse/bidfuse-server/metrics"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

// scriptedBidder returns a canned seat result, optionally after a delay, optionally
// by panicking instead.
type scriptedBidder struct {
	bids   []*adapters.TypedBid
	errs   []error
	delay  time.Duration
	panics bool
}

func (s *scriptedBidder) requestBid(ctx context.Context, request *openrtb2.BidRequest, name openrtb_ext.BidderName, reqInfo *adapters.ExtraRequestInfo) *SeatResult {
	if s.panics {
		panic("scripted failure")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return &SeatResult{
				Bidder: name,
				Errors: []error{&errortypes.Timeout{Message: ctx.Err().Error()}},
			}
		}
	}
	return &SeatResult{
		Bidder:   name,
		Currency: "USD",
		Bids:     s.bids,
		Errors:   s.errs,
	}
}

func testExchange(adapterMap map[openrtb_ext.BidderName]AdaptedBidder) *exchange {
	return &exchange{
		adapterMap: adapterMap,
		me:         metrics.NewBlankMetrics(gometrics.NewRegistry(), openrtb_ext.CoreBidderNames()),
		tmax:       config.AuctionTimeouts{Default: 50, Max: 100},
	}
}

func bannerBid(id, impID string, price float64) *adapters.TypedBid {
	return &adapters.TypedBid{
		Bid:     &openrtb2.Bid{ID: id, ImpID: impID, Price: price},
		BidType: openrtb_ext.BidTypeBanner,
	}
}

func parseRespExt(t *testing.T, resp *openrtb2.BidResponse) openrtb_ext.ExtBidResponse {
	t.Helper()
	var respExt openrtb_ext.ExtBidResponse
	require.NoError(t, json.Unmarshal(resp.Ext, &respExt))
	return respExt
}

func TestOneBidderTimeoutDoesNotAffectOthers(t *testing.T) {
	e := testExchange(map[openrtb_ext.BidderName]AdaptedBidder{
		openrtb_ext.BidderAdmezzo:  &scriptedBidder{delay: time.Second},
		openrtb_ext.BidderBidpulse: &scriptedBidder{bids: []*adapters.TypedBid{bannerBid("bid-1", "imp-1", 2.5)}},
	})

	resp, err := e.HoldAuction(context.Background(), &AuctionRequest{
		BidRequest: &openrtb2.BidRequest{
			ID:   "req-1",
			Imp:  []openrtb2.Imp{{ID: "imp-1", Banner: &openrtb2.Banner{}}},
			TMax: 20,
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1, "only the responsive bidder should have a seat")
	assert.Equal(t, "bidpulse", resp.SeatBid[0].Seat)
	require.Len(t, resp.SeatBid[0].Bid, 1)
	assert.Equal(t, "bid-1", resp.SeatBid[0].Bid[0].ID)

	respExt := parseRespExt(t, resp)
	require.Len(t, respExt.Errors[openrtb_ext.BidderAdmezzo], 1)
	assert.Equal(t, errortypes.TimeoutErrorCode, respExt.Errors[openrtb_ext.BidderAdmezzo][0].Code)
	assert.Empty(t, respExt.Errors[openrtb_ext.BidderBidpulse])
}

func TestPanickingBidderIsIsolated(t *testing.T) {
	e := testExchange(map[openrtb_ext.BidderName]AdaptedBidder{
		openrtb_ext.BidderAdmezzo:  &scriptedBidder{panics: true},
		openrtb_ext.BidderBidpulse: &scriptedBidder{bids: []*adapters.TypedBid{bannerBid("bid-1", "imp-1", 1.0)}},
	})

	resp, err := e.HoldAuction(context.Background(), &AuctionRequest{
		BidRequest: &openrtb2.BidRequest{
			ID:  "req-1",
			Imp: []openrtb2.Imp{{ID: "imp-1", Banner: &openrtb2.Banner{}}},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1)
	assert.Equal(t, "bidpulse", resp.SeatBid[0].Seat)

	respExt := parseRespExt(t, resp)
	require.Len(t, respExt.Errors[openrtb_ext.BidderAdmezzo], 1)
	assert.Contains(t, respExt.Errors[openrtb_ext.BidderAdmezzo][0].Message, "panicked")
}

func TestEmptySeatErrorsSurvive(t *testing.T) {
	e := testExchange(map[openrtb_ext.BidderName]AdaptedBidder{
		openrtb_ext.BidderGeneric: &scriptedBidder{errs: []error{&errortypes.BadServerResponse{Message: "bad markup"}}},
	})

	resp, err := e.HoldAuction(context.Background(), &AuctionRequest{
		BidRequest: &openrtb2.BidRequest{
			ID:  "req-1",
			Imp: []openrtb2.Imp{{ID: "imp-1", Banner: &openrtb2.Banner{}}},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, resp.SeatBid, "seats without bids must be dropped")
	respExt := parseRespExt(t, resp)
	require.Len(t, respExt.Errors[openrtb_ext.BidderGeneric], 1)
	assert.Equal(t, errortypes.BadServerResponseErrorCode, respExt.Errors[openrtb_ext.BidderGeneric][0].Code)
	assert.Contains(t, respExt.ResponseTimeMillis, openrtb_ext.BidderGeneric)
}

func TestExplicitBidderListRestrictsFanOut(t *testing.T) {
	e := testExchange(map[openrtb_ext.BidderName]AdaptedBidder{
		openrtb_ext.BidderAdmezzo:  &scriptedBidder{bids: []*adapters.TypedBid{bannerBid("bid-a", "imp-1", 1.0)}},
		openrtb_ext.BidderBidpulse: &scriptedBidder{bids: []*adapters.TypedBid{bannerBid("bid-b", "imp-1", 2.0)}},
	})

	resp, err := e.HoldAuction(context.Background(), &AuctionRequest{
		BidRequest: &openrtb2.BidRequest{
			ID:  "req-1",
			Imp: []openrtb2.Imp{{ID: "imp-1", Banner: &openrtb2.Banner{}}},
		},
		Bidders: []openrtb_ext.BidderName{openrtb_ext.BidderAdmezzo},
	})
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1)
	assert.Equal(t, "admezzo", resp.SeatBid[0].Seat)

	respExt := parseRespExt(t, resp)
	assert.NotContains(t, respExt.ResponseTimeMillis, openrtb_ext.BidderBidpulse)
}

func TestDefaultBidderListIsEveryAdapter(t *testing.T) {
	e := testExchange(map[openrtb_ext.BidderName]AdaptedBidder{
		openrtb_ext.BidderAdmezzo:  &scriptedBidder{bids: []*adapters.TypedBid{bannerBid("bid-a", "imp-1", 1.0)}},
		openrtb_ext.BidderBidpulse: &scriptedBidder{bids: []*adapters.TypedBid{bannerBid("bid-b", "imp-1", 2.0)}},
		openrtb_ext.BidderGeneric:  &scriptedBidder{bids: []*adapters.TypedBid{bannerBid("bid-c", "imp-1", 3.0)}},
	})

	resp, err := e.HoldAuction(context.Background(), &AuctionRequest{
		BidRequest: &openrtb2.BidRequest{
			ID:  "req-1",
			Imp: []openrtb2.Imp{{ID: "imp-1", Banner: &openrtb2.Banner{}}},
		},
	})
	require.NoError(t, err)
	assert.Len(t, resp.SeatBid, 3)
}

func TestBidExtCarriesResolvedType(t *testing.T) {
	typedBid := &adapters.TypedBid{
		Bid: &openrtb2.Bid{
			ID:    "bid-1",
			ImpID: "imp-1",
			Ext:   json.RawMessage(`{"dealPriority":5}`),
		},
		BidType: openrtb_ext.BidTypeVideo,
	}
	e := testExchange(map[openrtb_ext.BidderName]AdaptedBidder{
		openrtb_ext.BidderGeneric: &scriptedBidder{bids: []*adapters.TypedBid{typedBid}},
	})

	resp, err := e.HoldAuction(context.Background(), &AuctionRequest{
		BidRequest: &openrtb2.BidRequest{
			ID:  "req-1",
			Imp: []openrtb2.Imp{{ID: "imp-1", Video: &openrtb2.Video{}}},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.SeatBid, 1)
	require.Len(t, resp.SeatBid[0].Bid, 1)

	var bidExt openrtb_ext.ExtBid
	require.NoError(t, json.Unmarshal(resp.SeatBid[0].Bid[0].Ext, &bidExt))
	require.NotNil(t, bidExt.Prebid)
	assert.Equal(t, openrtb_ext.BidTypeVideo, bidExt.Prebid.Type)
	assert.JSONEq(t, `{"dealPriority":5}`, string(bidExt.Bidder))
}

func TestNilRequestRejected(t *testing.T) {
	e := testExchange(nil)

	_, err := e.HoldAuction(context.Background(), nil)
	assert.Error(t, err)

	_, err = e.HoldAuction(context.Background(), &AuctionRequest{})
	assert.Error(t, err)
}

func TestAuctionContextBoundsTmax(t *testing.T) {
	e := testExchange(nil)

	ctx, cancel := e.makeAuctionContext(context.Background(), 5000)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(100*time.Millisecond), deadline, 50*time.Millisecond, "tmax above the max must be clamped")

	ctx, cancel = e.makeAuctionContext(context.Background(), 0)
	defer cancel()
	deadline, ok = ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond, "a missing tmax falls back to the default")
}
