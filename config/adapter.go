package config

import (
	"fmt"
	"text/template"

	validator "github.com/asaskevich/govalidator"

	"github.com/bidfuse/bidfuse-server/macros"
)

// Adapter is the configuration bundle an adapter is constructed from, once per
// process lifetime. Endpoint is required; everything else is optional.
type Adapter struct {
	// Endpoint is the URL the adapter sends bid requests to. This value is interpreted
	// as a Golang text template; EndpointTemplateParams macros are replaced per
	// impression from the adapter's ext params.
	Endpoint         string `mapstructure:"endpoint"`
	Disabled         bool   `mapstructure:"disabled"`
	ExtraAdapterInfo string `mapstructure:"extra_info"`
}

// validateAdapters makes sure every enabled adapter carries a structurally valid endpoint.
func validateAdapters(adapterMap map[string]Adapter, errs []error) []error {
	for adapterName, adapter := range adapterMap {
		if !adapter.Disabled {
			errs = validateAdapterEndpoint(adapter.Endpoint, adapterName, errs)
		}
	}
	return errs
}

const (
	dummyHost        string = "dummyhost.com"
	dummyPublisherID string = "12"
	dummyAccountID   string = "some_account"
	dummyZoneID      string = "zone"
)

// validateAdapterEndpoint makes sure that an adapter has a valid endpoint associated
// with it. This runs once at startup: a process must never reach request-serving with
// a broken adapter silently degrading per call.
func validateAdapterEndpoint(endpoint string, adapterName string, errs []error) []error {
	if endpoint == "" {
		return append(errs, fmt.Errorf("There's no default endpoint available for %s. Calls to this bidder/exchange will fail. "+
			"Please set adapters.%s.endpoint in your app config", adapterName, adapterName))
	}

	endpointTemplate, err := template.New("endpointTemplate").Parse(endpoint)
	if err != nil {
		return append(errs, fmt.Errorf("Invalid endpoint template: %s for adapter: %s. %v", endpoint, adapterName, err))
	}
	// Resolve macros (if any) in the endpoint URL
	resolvedEndpoint, err := macros.ResolveMacros(endpointTemplate, macros.EndpointTemplateParams{
		Host:        dummyHost,
		PublisherID: dummyPublisherID,
		AccountID:   dummyAccountID,
		ZoneID:      dummyZoneID,
	})
	if err != nil {
		return append(errs, fmt.Errorf("Unable to resolve endpoint: %s for adapter: %s. %v", endpoint, adapterName, err))
	}
	// Validating using both IsURL and IsRequestURL because IsURL allows relative paths
	// whereas IsRequestURL requires absolute path but fails to check other valid URL
	// format constraints.
	//
	// For example: IsURL will allow "abcd.com" but IsRequestURL won't
	// IsRequestURL will allow "http://http://abcd.com" but IsURL won't
	if !validator.IsURL(resolvedEndpoint) || !validator.IsRequestURL(resolvedEndpoint) {
		errs = append(errs, fmt.Errorf("The endpoint: %s for %s is not a valid URL", resolvedEndpoint, adapterName))
	}
	return errs
}
