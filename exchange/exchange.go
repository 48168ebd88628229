package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang/glog"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidfuse/bidfuse-server/adapters"
	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/errortypes"
	"github.com/bidfuse/bidfuse-server/metrics"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

// Exchange runs auctions. Implementations must be threadsafe, and will be shared
// across many goroutines.
type Exchange interface {
	// HoldAuction executes an OpenRTB v2.5 auction: it fans the request out to every
	// eligible adapter under one shared deadline and merges the seat results. The
	// returned error is reserved for malfunctions of the exchange itself; adapter
	// failures of any kind surface inside response.ext.errors instead.
	HoldAuction(ctx context.Context, r *AuctionRequest) (*openrtb2.BidResponse, error)
}

// AuctionRequest is everything one auction needs. The upstream endpoint decides
// bidder eligibility (consent gating lives there, not here); the exchange just runs
// whoever it is given.
type AuctionRequest struct {
	BidRequest *openrtb2.BidRequest

	// Bidders lists the eligible adapters for this auction. When empty, every
	// registered adapter participates.
	Bidders []openrtb_ext.BidderName

	// GlobalPrivacyControlHeader mirrors the Sec-GPC header of the inbound request.
	GlobalPrivacyControlHeader string
}

type exchange struct {
	adapterMap map[openrtb_ext.BidderName]AdaptedBidder
	me         *metrics.Metrics
	tmax       config.AuctionTimeouts
}

// NewExchange builds the auction engine out of the registered adapters. Adapter
// construction happens here, once, so a misconfigured adapter halts startup instead
// of degrading every auction.
func NewExchange(client *http.Client, cfg *config.Configuration, me *metrics.Metrics) (Exchange, error) {
	bidders, err := BuildBidders(cfg.Adapters, coreBidderBuilders())
	if err != nil {
		return nil, err
	}

	adapterMap := make(map[openrtb_ext.BidderName]AdaptedBidder, len(bidders))
	for name, bidder := range bidders {
		adapterMap[name] = AdaptBidder(bidder, client)
	}

	return &exchange{
		adapterMap: adapterMap,
		me:         me,
		tmax:       cfg.AuctionTimeouts,
	}, nil
}

func (e *exchange) HoldAuction(ctx context.Context, r *AuctionRequest) (*openrtb2.BidResponse, error) {
	if r == nil || r.BidRequest == nil {
		return nil, fmt.Errorf("exchange: nil auction request")
	}

	bidders := r.Bidders
	if len(bidders) == 0 {
		bidders = make([]openrtb_ext.BidderName, 0, len(e.adapterMap))
		for name := range e.adapterMap {
			bidders = append(bidders, name)
		}
		sort.Slice(bidders, func(i, j int) bool { return bidders[i] < bidders[j] })
	}

	auctionCtx, cancel := e.makeAuctionContext(ctx, r.BidRequest.TMax)
	defer cancel()

	seatResults := e.getAllSeatBids(auctionCtx, r, bidders)

	return e.buildBidResponse(r.BidRequest, seatResults)
}

// makeAuctionContext derives the single shared deadline every adapter and call runs
// under. The request's tmax is bounded by the configured limits.
func (e *exchange) makeAuctionContext(ctx context.Context, tmaxMillis int64) (auctionCtx context.Context, cancel context.CancelFunc) {
	timeout := e.tmax.LimitAuctionTimeout(time.Duration(tmaxMillis) * time.Millisecond)
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

// getAllSeatBids fans the auction out to every bidder and joins the results. Each
// bidder runs in its own goroutine with no shared mutable state: aggregation happens
// here, after the join, never through a shared accumulator.
func (e *exchange) getAllSeatBids(ctx context.Context, r *AuctionRequest, bidders []openrtb_ext.BidderName) []*SeatResult {
	chResults := make(chan *SeatResult, len(bidders))

	for _, name := range bidders {
		bidderRunner := e.recoverSafely(func(aName openrtb_ext.BidderName) {
			start := time.Now()
			e.me.RecordAdapterRequest(aName)

			reqInfo := adapters.ExtraRequestInfo{
				GlobalPrivacyControlHeader: r.GlobalPrivacyControlHeader,
			}

			bidder, ok := e.adapterMap[aName]
			if !ok {
				chResults <- &SeatResult{
					Bidder: aName,
					Errors: []error{&errortypes.BadInput{Message: fmt.Sprintf("unknown bidder %s", aName)}},
				}
				return
			}

			seat := bidder.requestBid(ctx, r.BidRequest, aName, &reqInfo)

			elapsed := time.Since(start)
			seat.ResponseTimeMillis = int(elapsed / time.Millisecond)
			e.me.RecordAdapterTime(aName, elapsed)
			e.me.RecordAdapterOutcome(aName, len(seat.Bids), seat.Errors)
			for _, bid := range seat.Bids {
				e.me.RecordAdapterPrice(aName, bid.Bid.Price*1000)
			}

			chResults <- seat
		}, chResults)
		go bidderRunner(name)
	}

	// Wait for all the bidders to do their thing. The join is bounded by the shared
	// deadline carried inside ctx, not by any individual call.
	seatResults := make([]*SeatResult, 0, len(bidders))
	for i := 0; i < len(bidders); i++ {
		seatResults = append(seatResults, <-chResults)
	}

	return seatResults
}

// recoverSafely makes sure one panicking adapter cannot take the whole auction down:
// the panic becomes an error-only seat result and every other bidder proceeds.
func (e *exchange) recoverSafely(inner func(openrtb_ext.BidderName), chResults chan *SeatResult) func(openrtb_ext.BidderName) {
	return func(aName openrtb_ext.BidderName) {
		defer func() {
			if r := recover(); r != nil {
				glog.Errorf("OpenRTB auction recovered panic from bidder %s: %v. Stack trace is: %v", aName, r, string(debug.Stack()))
				chResults <- &SeatResult{
					Bidder: aName,
					Errors: []error{fmt.Errorf("bidder %s panicked: %v", aName, r)},
				}
			}
		}()
		inner(aName)
	}
}

// buildBidResponse assembles the final OpenRTB response. Seats with no bids are
// dropped (the OpenRTB spec requires at least one bid per seatbid), but their errors
// always survive into response.ext.errors so partial failure stays visible.
func (e *exchange) buildBidResponse(request *openrtb2.BidRequest, seatResults []*SeatResult) (*openrtb2.BidResponse, error) {
	bidResponse := &openrtb2.BidResponse{
		ID:  request.ID,
		Cur: "USD",
	}
	if u, err := uuid.NewV4(); err == nil {
		bidResponse.BidID = u.String()
	}

	respExt := openrtb_ext.ExtBidResponse{
		Errors:               make(map[openrtb_ext.BidderName][]openrtb_ext.ExtBidderMessage, len(seatResults)),
		ResponseTimeMillis:   make(map[openrtb_ext.BidderName]int, len(seatResults)),
		RequestTimeoutMillis: request.TMax,
	}

	for _, seat := range seatResults {
		respExt.ResponseTimeMillis[seat.Bidder] = seat.ResponseTimeMillis
		if len(seat.Errors) > 0 {
			respExt.Errors[seat.Bidder] = errsToBidderErrors(seat.Errors)
		}
		if len(seat.Bids) == 0 {
			continue
		}

		seatBid := openrtb2.SeatBid{
			Seat: seat.Bidder.String(),
			Bid:  make([]openrtb2.Bid, 0, len(seat.Bids)),
		}
		for _, typedBid := range seat.Bids {
			bid := *typedBid.Bid
			bid.Ext = buildBidExt(typedBid)
			seatBid.Bid = append(seatBid.Bid, bid)
		}
		bidResponse.SeatBid = append(bidResponse.SeatBid, seatBid)
	}

	ext, err := json.Marshal(respExt)
	if err != nil {
		return nil, fmt.Errorf("error marshalling response ext: %v", err)
	}
	bidResponse.Ext = ext

	return bidResponse, nil
}

// buildBidExt rewrites the bid ext so the resolved type lands on
// response.seatbid[i].bid[j].ext.prebid.type and the exchange-specific ext
// payload moves under ext.bidder.
func buildBidExt(typedBid *adapters.TypedBid) json.RawMessage {
	bidExt := openrtb_ext.ExtBid{
		Prebid: &openrtb_ext.ExtBidPrebid{Type: typedBid.BidType},
		Bidder: typedBid.Bid.Ext,
	}
	ext, err := json.Marshal(bidExt)
	if err != nil {
		glog.Warningf("error marshalling bid ext: %v", err)
		return typedBid.Bid.Ext
	}
	return ext
}

// errsToBidderErrors serializes adapter errors for the response: a classified kind
// and a human-readable message, never a live error value.
func errsToBidderErrors(errs []error) []openrtb_ext.ExtBidderMessage {
	serr := make([]openrtb_ext.ExtBidderMessage, 0, len(errs))
	for _, err := range errs {
		serr = append(serr, openrtb_ext.ExtBidderMessage{
			Code:    errortypes.ReadCode(err),
			Message: err.Error(),
		})
	}
	return serr
}
