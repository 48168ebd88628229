package macros

import (
	"bytes"
	"text/template"
)

// EndpointTemplateParams specifies the macros which may appear in an adapter's
// endpoint template. Adapters resolve these per impression from their ext params.
type EndpointTemplateParams struct {
	Host        string
	PublisherID string
	ZoneID      string
	AccountID   string
}

// ResolveMacros resolves macros in the given template with the provided params.
func ResolveMacros(aTemplate *template.Template, params interface{}) (string, error) {
	strBuf := bytes.Buffer{}

	err := aTemplate.Execute(&strBuf, params)
	if err != nil {
		return "", err
	}

	return strBuf.String(), nil
}
