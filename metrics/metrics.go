package metrics

import (
	"fmt"
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/bidfuse/bidfuse-server/errortypes"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

// Metrics aggregates the go-metrics instruments for the auction path. All record
// methods are safe for concurrent use and noop on blank instances, so callers never
// have to branch on whether metrics are enabled.
type Metrics struct {
	MetricsRegistry   metrics.Registry
	ConnectionCounter metrics.Counter
	RequestMeter      metrics.Meter
	RequestTimer      metrics.Timer
	ImpMeter          metrics.Meter

	AdapterMetrics map[openrtb_ext.BidderName]*AdapterMetrics
}

// AdapterMetrics houses the metrics for a particular adapter.
type AdapterMetrics struct {
	RequestMeter      metrics.Meter
	NoBidMeter        metrics.Meter
	TimeoutMeter      metrics.Meter
	ErrorMeter        metrics.Meter
	RequestTimer      metrics.Timer
	PriceHistogram    metrics.Histogram
	BidsReceivedMeter metrics.Meter
}

// NewBlankMetrics creates a Metrics object where every instrument is a nil
// implementation. Useful for tests which shouldn't write metrics anywhere.
func NewBlankMetrics(registry metrics.Registry, exchanges []openrtb_ext.BidderName) *Metrics {
	blankMeter := &metrics.NilMeter{}
	newMetrics := &Metrics{
		MetricsRegistry:   registry,
		ConnectionCounter: &metrics.NilCounter{},
		RequestMeter:      blankMeter,
		RequestTimer:      &metrics.NilTimer{},
		ImpMeter:          blankMeter,
		AdapterMetrics:    make(map[openrtb_ext.BidderName]*AdapterMetrics, len(exchanges)),
	}
	for _, a := range exchanges {
		newMetrics.AdapterMetrics[a] = &AdapterMetrics{
			RequestMeter:      blankMeter,
			NoBidMeter:        blankMeter,
			TimeoutMeter:      blankMeter,
			ErrorMeter:        blankMeter,
			RequestTimer:      &metrics.NilTimer{},
			PriceHistogram:    &metrics.NilHistogram{},
			BidsReceivedMeter: blankMeter,
		}
	}
	return newMetrics
}

// NewMetrics creates a Metrics object with the needed metrics registered.
func NewMetrics(registry metrics.Registry, exchanges []openrtb_ext.BidderName) *Metrics {
	newMetrics := NewBlankMetrics(registry, exchanges)
	newMetrics.ConnectionCounter = metrics.GetOrRegisterCounter("active_connections", registry)
	newMetrics.RequestMeter = metrics.GetOrRegisterMeter("requests", registry)
	newMetrics.RequestTimer = metrics.GetOrRegisterTimer("request_time", registry)
	newMetrics.ImpMeter = metrics.GetOrRegisterMeter("imps_requested", registry)
	for _, a := range exchanges {
		registerAdapterMetrics(registry, string(a), newMetrics.AdapterMetrics[a])
	}
	return newMetrics
}

func registerAdapterMetrics(registry metrics.Registry, exchange string, am *AdapterMetrics) {
	am.RequestMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.requests", exchange), registry)
	am.NoBidMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.no_bid_requests", exchange), registry)
	am.TimeoutMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.timeout_requests", exchange), registry)
	am.ErrorMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.error_requests", exchange), registry)
	am.RequestTimer = metrics.GetOrRegisterTimer(fmt.Sprintf("adapter.%s.request_time", exchange), registry)
	am.PriceHistogram = metrics.GetOrRegisterHistogram(fmt.Sprintf("adapter.%s.prices", exchange), registry, metrics.NewExpDecaySample(1028, 0.015))
	am.BidsReceivedMeter = metrics.GetOrRegisterMeter(fmt.Sprintf("adapter.%s.bids_received", exchange), registry)
}

// RecordConnectionOpen registers one accepted inbound connection.
func (me *Metrics) RecordConnectionOpen() {
	me.ConnectionCounter.Inc(1)
}

// RecordConnectionClose registers one closed inbound connection.
func (me *Metrics) RecordConnectionClose() {
	me.ConnectionCounter.Dec(1)
}

// RecordRequest registers one inbound auction request covering the given imps.
func (me *Metrics) RecordRequest(numImps int) {
	me.RequestMeter.Mark(1)
	me.ImpMeter.Mark(int64(numImps))
}

// RecordRequestTime registers the fulfillment time of one inbound auction request.
func (me *Metrics) RecordRequestTime(length time.Duration) {
	me.RequestTimer.Update(length)
}

// RecordAdapterRequest registers one outbound auction participation for an adapter.
func (me *Metrics) RecordAdapterRequest(bidder openrtb_ext.BidderName) {
	if am, ok := me.AdapterMetrics[bidder]; ok {
		am.RequestMeter.Mark(1)
	}
}

// RecordAdapterTime registers how long an adapter took to resolve all its calls.
func (me *Metrics) RecordAdapterTime(bidder openrtb_ext.BidderName, length time.Duration) {
	if am, ok := me.AdapterMetrics[bidder]; ok {
		am.RequestTimer.Update(length)
	}
}

// RecordAdapterOutcome registers the bids and errors one adapter produced for one auction.
func (me *Metrics) RecordAdapterOutcome(bidder openrtb_ext.BidderName, numBids int, errs []error) {
	am, ok := me.AdapterMetrics[bidder]
	if !ok {
		return
	}
	if numBids == 0 {
		am.NoBidMeter.Mark(1)
	} else {
		am.BidsReceivedMeter.Mark(int64(numBids))
	}
	for _, err := range errs {
		if errortypes.ReadCode(err) == errortypes.TimeoutErrorCode {
			am.TimeoutMeter.Mark(1)
		} else {
			am.ErrorMeter.Mark(1)
		}
	}
}

// RecordAdapterPrice registers the CPM of one received bid.
func (me *Metrics) RecordAdapterPrice(bidder openrtb_ext.BidderName, cpm float64) {
	if am, ok := me.AdapterMetrics[bidder]; ok {
		am.PriceHistogram.Update(int64(cpm))
	}
}
