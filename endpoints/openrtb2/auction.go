package openrtb2

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/buger/jsonparser"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/exchange"
	"github.com/bidfuse/bidfuse-server/metrics"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

// NewEndpoint builds the /openrtb2/auction handler.
func NewEndpoint(ex exchange.Exchange, cfg *config.Configuration, me *metrics.Metrics) (httprouter.Handle, error) {
	if ex == nil || cfg == nil || me == nil {
		return nil, errors.New("NewEndpoint requires non-nil arguments.")
	}

	return httprouter.Handle((&endpointDeps{ex, cfg, me}).Auction), nil
}

type endpointDeps struct {
	ex  exchange.Exchange
	cfg *config.Configuration
	me  *metrics.Metrics
}

func (deps *endpointDeps) Auction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()

	req, errL := deps.parseRequest(r)
	if len(errL) > 0 {
		w.WriteHeader(http.StatusBadRequest)
		for _, err := range errL {
			fmt.Fprintf(w, "Invalid request format: %s\n", err.Error())
		}
		return
	}

	deps.me.RecordRequest(len(req.Imp))

	auctionRequest := &exchange.AuctionRequest{
		BidRequest:                 req,
		Bidders:                    requestedBidders(req),
		GlobalPrivacyControlHeader: r.Header.Get("Sec-GPC"),
	}

	response, err := deps.ex.HoldAuction(r.Context(), auctionRequest)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Critical error while running the auction: %v", err)
		glog.Errorf("/openrtb2/auction Critical error: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// The response is already partially written; all we can do is log.
		glog.Errorf("/openrtb2/auction Failed to send response: %v", err)
	}

	deps.me.RecordRequestTime(time.Since(start))
}

// parseRequest turns the HTTP request into an OpenRTB request.
//
// If the errors list is empty, the returned request is valid according to the
// OpenRTB 2.5 spec, with tmax clamped to the configured bounds. Otherwise no
// guarantees are made about the returned request.
func (deps *endpointDeps) parseRequest(httpRequest *http.Request) (req *openrtb2.BidRequest, errs []error) {
	req = &openrtb2.BidRequest{}

	if err := json.NewDecoder(httpRequest.Body).Decode(req); err != nil {
		return req, []error{err}
	}

	deps.setFieldsImplicitly(httpRequest, req)

	if err := deps.validateRequest(req); err != nil {
		return req, []error{err}
	}
	return req, nil
}

// setFieldsImplicitly fills in sensible values for fields the caller omitted.
func (deps *endpointDeps) setFieldsImplicitly(httpRequest *http.Request, req *openrtb2.BidRequest) {
	if req.TMax == 0 {
		req.TMax = int64(deps.cfg.AuctionTimeouts.Default)
	}
	if req.Site == nil && req.App == nil {
		referrer := httpRequest.Referer()
		if referrer != "" {
			req.Site = &openrtb2.Site{Page: referrer}
		}
	}
}

func (deps *endpointDeps) validateRequest(req *openrtb2.BidRequest) error {
	if req.ID == "" {
		return errors.New(`request missing required field: "id"`)
	}

	if req.TMax < 0 {
		return fmt.Errorf("request.tmax must be nonnegative. Got %d", req.TMax)
	}

	if len(req.Imp) < 1 {
		return errors.New("request.imp must contain at least one element.")
	}

	impIDs := make(map[string]int, len(req.Imp))
	for index := range req.Imp {
		imp := &req.Imp[index]
		if firstIndex, ok := impIDs[imp.ID]; ok {
			return fmt.Errorf(`request.imp[%d] and request.imp[%d] both use the ID %q. IDs must be unique.`, firstIndex, index, imp.ID)
		}
		impIDs[imp.ID] = index
		if err := validateImp(imp, index); err != nil {
			return err
		}
	}
	return nil
}

func validateImp(imp *openrtb2.Imp, index int) error {
	if imp.ID == "" {
		return fmt.Errorf(`request.imp[%d] missing required field: "id"`, index)
	}

	if imp.Banner == nil && imp.Video == nil && imp.Audio == nil && imp.Native == nil {
		return fmt.Errorf(`request.imp[%d] must contain at least one of "banner", "video", "audio", or "native"`, index)
	}

	if imp.Video != nil && len(imp.Video.MIMEs) < 1 {
		return fmt.Errorf("request.imp[%d].video.mimes must contain at least one supported MIME type", index)
	}

	if imp.Audio != nil && len(imp.Audio.MIMEs) < 1 {
		return fmt.Errorf("request.imp[%d].audio.mimes must contain at least one supported MIME type", index)
	}

	if imp.Native != nil && imp.Native.Request == "" {
		return fmt.Errorf("request.imp[%d].native.request must be a JSON encoded string conforming to the openrtb 1.2 Native spec", index)
	}

	if len(imp.Ext) > 0 {
		if err := jsonparser.ObjectEach(imp.Ext, func(_, _ []byte, _ jsonparser.ValueType, _ int) error {
			return nil
		}); err != nil {
			return fmt.Errorf("request.imp[%d].ext is not valid JSON: %v", index, err)
		}
	}

	return nil
}

// requestedBidders extracts the set of bidders named by the impressions. A key on
// imp.ext counts if it matches a registered bidder; "prebid" and other non-bidder
// keys are skipped. An empty result leaves bidder selection to the exchange.
func requestedBidders(req *openrtb2.BidRequest) []openrtb_ext.BidderName {
	seen := make(map[openrtb_ext.BidderName]struct{})
	for _, imp := range req.Imp {
		if len(imp.Ext) == 0 {
			continue
		}
		jsonparser.ObjectEach(imp.Ext, func(key []byte, _ []byte, _ jsonparser.ValueType, _ int) error {
			if name, ok := openrtb_ext.BidderMap[string(key)]; ok {
				seen[name] = struct{}{}
			}
			return nil
		})
	}

	if len(seen) == 0 {
		return nil
	}
	bidders := make([]openrtb_ext.BidderName, 0, len(seen))
	for name := range seen {
		bidders = append(bidders, name)
	}
	sort.Slice(bidders, func(i, j int) bool { return bidders[i] < bidders[j] })
	return bidders
}
