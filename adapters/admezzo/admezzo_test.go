package admezzo

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidfuse/bidfuse-server/adapters"
	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/errortypes"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

const testEndpoint = "https://rtb.admezzo.example/openrtb2?pub={{.PublisherID}}"

func buildBidder(t *testing.T) adapters.Bidder {
	bidder, err := Builder(openrtb_ext.BidderAdmezzo, config.Adapter{Endpoint: testEndpoint})
	require.NoError(t, err)
	return bidder
}

func TestBuilderRejectsBadTemplate(t *testing.T) {
	bidder, err := Builder(openrtb_ext.BidderAdmezzo, config.Adapter{Endpoint: "https://rtb.admezzo.example/{{.PublisherID"})
	assert.Error(t, err)
	assert.Nil(t, bidder, "a failed build must not leave a partially constructed bidder")
}

func TestMakeRequestsOneCallPerImp(t *testing.T) {
	bidder := buildBidder(t)

	request := &openrtb2.BidRequest{
		ID: "req-1",
		Imp: []openrtb2.Imp{
			{ID: "imp-1", Banner: &openrtb2.Banner{}, Ext: json.RawMessage(`{"bidder":{"publisherId":"p100","zoneId":"z1"}}`)},
			{ID: "imp-2", Video: &openrtb2.Video{}, Ext: json.RawMessage(`{"bidder":{"publisherId":"p200"}}`)},
		},
	}

	reqs, errs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})
	assert.Empty(t, errs)
	require.Len(t, reqs, 2)
	assert.Equal(t, "https://rtb.admezzo.example/openrtb2?pub=p100", reqs[0].Uri)
	assert.Equal(t, "https://rtb.admezzo.example/openrtb2?pub=p200", reqs[1].Uri)
	assert.Equal(t, []string{"imp-1"}, reqs[0].ImpIDs)

	var sent openrtb2.BidRequest
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	require.Len(t, sent.Imp, 1)
	assert.Equal(t, "z1", sent.Imp[0].TagID)
}

func TestMakeRequestsSkipsMalformedImp(t *testing.T) {
	bidder := buildBidder(t)

	request := &openrtb2.BidRequest{
		ID: "req-1",
		Imp: []openrtb2.Imp{
			{ID: "imp-1", Banner: &openrtb2.Banner{}, Ext: json.RawMessage(`{"bidder":"not-an-object"}`)},
			{ID: "imp-2", Banner: &openrtb2.Banner{}, Ext: json.RawMessage(`{"bidder":{"publisherId":"p200"}}`)},
			{ID: "imp-3", Banner: &openrtb2.Banner{}, Ext: json.RawMessage(`{"bidder":{"zoneId":"z3"}}`)},
		},
	}

	reqs, errs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})
	require.Len(t, reqs, 1, "one bad impression must not abort the build")
	assert.Equal(t, []string{"imp-2"}, reqs[0].ImpIDs)
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.IsType(t, &errortypes.BadInput{}, err)
	}
}

func TestMakeRequestsIdempotent(t *testing.T) {
	bidder := buildBidder(t)
	request := &openrtb2.BidRequest{
		ID: "req-1",
		Imp: []openrtb2.Imp{
			{ID: "imp-1", Banner: &openrtb2.Banner{}, Ext: json.RawMessage(`{"bidder":{"publisherId":"p100"}}`)},
		},
	}

	first, firstErrs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})
	second, secondErrs := bidder.MakeRequests(request, &adapters.ExtraRequestInfo{})
	assert.Equal(t, first, second)
	assert.Equal(t, firstErrs, secondErrs)
}

func TestMakeBidsStatusPolicy(t *testing.T) {
	bidder := buildBidder(t)
	request := &openrtb2.BidRequest{ID: "req-1", Imp: []openrtb2.Imp{{ID: "imp-1", Banner: &openrtb2.Banner{}}}}

	t.Run("204 is a valid no-bid", func(t *testing.T) {
		bids, errs := bidder.MakeBids(request, nil, &adapters.ResponseData{StatusCode: http.StatusNoContent})
		assert.Nil(t, bids)
		assert.Empty(t, errs)
	})

	t.Run("unparsable 200 body", func(t *testing.T) {
		bids, errs := bidder.MakeBids(request, nil, &adapters.ResponseData{StatusCode: http.StatusOK, Body: []byte(`<html>`)})
		assert.Nil(t, bids)
		require.Len(t, errs, 1)
		assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])
	})

	t.Run("5xx", func(t *testing.T) {
		bids, errs := bidder.MakeBids(request, nil, &adapters.ResponseData{StatusCode: http.StatusBadGateway})
		assert.Nil(t, bids)
		require.Len(t, errs, 1)
		assert.IsType(t, &errortypes.BadServerResponse{}, errs[0])
	})
}

func TestMakeBidsPerBidIsolation(t *testing.T) {
	bidder := buildBidder(t)
	request := &openrtb2.BidRequest{
		ID: "req-1",
		Imp: []openrtb2.Imp{
			{ID: "imp-1", Banner: &openrtb2.Banner{}, Video: &openrtb2.Video{}},
		},
	}

	body, err := json.Marshal(openrtb2.BidResponse{
		ID: "resp-1",
		SeatBid: []openrtb2.SeatBid{{
			Bid: []openrtb2.Bid{
				{ID: "bid-1", ImpID: "imp-1", Ext: json.RawMessage(`{"prebid":{"type":"video"}}`)},
				{ID: "bid-2", ImpID: "imp-1", Ext: json.RawMessage(`{"prebid":{"type":"video"}}`)},
				{ID: "bid-3", ImpID: "imp-1", Ext: json.RawMessage(`{"prebid":{"type":null}}`)},
			},
		}},
	})
	require.NoError(t, err)

	bids, errs := bidder.MakeBids(request, nil, &adapters.ResponseData{StatusCode: http.StatusOK, Body: body})
	require.NotNil(t, bids)
	require.Len(t, bids.Bids, 2, "siblings of a malformed bid must still be processed")
	assert.Equal(t, openrtb_ext.BidTypeVideo, bids.Bids[0].BidType)
	assert.Equal(t, openrtb_ext.BidTypeVideo, bids.Bids[1].BidType)
	require.Len(t, errs, 1)
	assert.IsType(t, &errortypes.BadInput{}, errs[0])
}
