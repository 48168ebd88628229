package router

import (
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rs/cors"

	"github.com/bidfuse/bidfuse-server/config"
	"github.com/bidfuse/bidfuse-server/endpoints"
	"github.com/bidfuse/bidfuse-server/endpoints/openrtb2"
	"github.com/bidfuse/bidfuse-server/exchange"
	"github.com/bidfuse/bidfuse-server/metrics"
	"github.com/bidfuse/bidfuse-server/openrtb_ext"
)

type Router struct {
	*httprouter.Router
	Metrics *metrics.Metrics
}

// New sets up the HTTP routes and everything they depend on: the outbound client,
// the metrics registry, the adapter registry, and the exchange. Any construction
// error is fatal to startup.
func New(cfg *config.Configuration) (*Router, error) {
	generalHTTPClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Client.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Client.MaxIdleConnsPerHost,
			IdleConnTimeout:     time.Duration(cfg.Client.IdleConnTimeout) * time.Second,
		},
	}

	me := metrics.NewMetrics(gometrics.NewRegistry(), openrtb_ext.CoreBidderNames())

	theExchange, err := exchange.NewExchange(generalHTTPClient, cfg, me)
	if err != nil {
		return nil, err
	}

	openrtbEndpoint, err := openrtb2.NewEndpoint(theExchange, cfg, me)
	if err != nil {
		glog.Fatalf("Failed to create the openrtb endpoint handler. %v", err)
	}

	r := &Router{
		Router:  httprouter.New(),
		Metrics: me,
	}
	r.POST("/openrtb2/auction", openrtbEndpoint)
	r.GET("/status", endpoints.NewStatusEndpoint(cfg.StatusResponse))
	r.GET("/", serveIndex)

	return r, nil
}

func serveIndex(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Write([]byte("bidfuse-server"))
}

// NoCache forces the browser to re-request everything it gets from us.
type NoCache struct {
	Handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.Handler.ServeHTTP(w, r)
}

// SupportCORS wraps the router with a permissive-origin CORS policy. Credentialed
// requests are allowed, which is why AllowOriginFunc echoes the caller's origin
// instead of using a wildcard.
//
// For more info, see:
//
// - https://github.com/rs/cors/issues/55
// - https://developer.mozilla.org/en-US/docs/Web/HTTP/CORS/Errors/CORSNotSupportingCredentials
func SupportCORS(handler http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowCredentials: true,
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept"}})
	return c.Handler(handler)
}
