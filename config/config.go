package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/viper"
)

// Configuration specifies the server's options. It is read once at startup and
// never modified while serving requests.
type Configuration struct {
	ExternalURL string `mapstructure:"external_url"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AdminPort   int    `mapstructure:"admin_port"`
	EnableGzip  bool   `mapstructure:"enable_gzip"`
	// StatusResponse is the body served on /status. When empty the endpoint
	// answers 204 No Content.
	StatusResponse string `mapstructure:"status_response"`
	// AuctionTimeouts bound the auction deadline derived from request.tmax.
	AuctionTimeouts AuctionTimeouts `mapstructure:"auction_timeouts_ms"`
	// Client configures the outbound HTTP client shared by all adapters.
	Client   HTTPClient         `mapstructure:"http_client"`
	Adapters map[string]Adapter `mapstructure:"adapters"`
}

type AuctionTimeouts struct {
	// The default timeout when the request doesn't define tmax explicitly.
	Default uint64 `mapstructure:"default"`
	// The max timeout. Imposed on requests which define unreasonably large tmax values.
	Max uint64 `mapstructure:"max"`
}

// LimitAuctionTimeout returns the auction timeout to use, given the request's tmax.
func (cfg *AuctionTimeouts) LimitAuctionTimeout(requested time.Duration) time.Duration {
	if requested == 0 && cfg.Default != 0 {
		return time.Duration(cfg.Default) * time.Millisecond
	}
	if cfg.Max != 0 {
		maxTimeout := time.Duration(cfg.Max) * time.Millisecond
		if requested == 0 || requested > maxTimeout {
			return maxTimeout
		}
	}
	return requested
}

type HTTPClient struct {
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_connection_timeout_seconds"`
}

// New uses viper to produce the server configuration, validating it before returning.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config. %v", err)
	}
	if errs := c.validate(); len(errs) > 0 {
		return &c, errortypesAggregate(errs)
	}
	glog.Infof("config successfully loaded: serving on %s:%d", c.Host, c.Port)
	return &c, nil
}

func (cfg *Configuration) validate() []error {
	var errs []error
	if cfg.AuctionTimeouts.Max < cfg.AuctionTimeouts.Default {
		errs = append(errs, fmt.Errorf("auction_timeouts_ms.max cannot be less than auction_timeouts_ms.default: %d < %d", cfg.AuctionTimeouts.Max, cfg.AuctionTimeouts.Default))
	}
	errs = validateAdapters(cfg.Adapters, errs)
	return errs
}

// SetupViper establishes defaults and environment bindings. filename is the name of
// the config file to search for (without extension); it may be empty.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}
	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("enable_gzip", false)
	v.SetDefault("status_response", "")
	v.SetDefault("auction_timeouts_ms.default", 200)
	v.SetDefault("auction_timeouts_ms.max", 1000)
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)

	v.SetDefault("adapters.admezzo.endpoint", "https://rtb.admezzo.example/openrtb2?pub={{.PublisherID}}")
	v.SetDefault("adapters.bidpulse.endpoint", "https://exchange.bidpulse.example/pserver")
	v.SetDefault("adapters.generic.endpoint", "https://bid.generic.example/openrtb2")

	v.SetEnvPrefix("BIDFUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.ReadInConfig()
}

// errortypesAggregate flattens startup validation failures into one error.
// Startup is the only place where errors are allowed to halt the process.
func errortypesAggregate(errs []error) error {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
