package watsonx

import (
	"os"
	"strings"

	"github.com/modelfleet/watsonx/internal/catalog"
)

// Defaults and environment fallbacks for per-call options.
const (
	DefaultBaseURL      = "https://us-south.ml.cloud.ibm.com"
	DefaultMaxNewTokens = 4096
	DefaultTemperature  = 0.7

	EnvAPIKey    = "WATSONX_API_KEY"
	EnvProjectID = "WATSONX_PROJECT_ID"
	EnvBaseURL   = "WATSONX_BASE_URL"
)

// apiVersion is the generation endpoint version query parameter.
const apiVersion = "2024-03-14"

// Pricing overrides catalog pricing for one call, USD per million tokens.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// StreamOptions configures one Stream invocation. Zero values fall back to
// the environment (APIKey, ProjectID, BaseURL) and then to package defaults.
// Cancellation is carried by the context passed to Stream.
type StreamOptions struct {
	APIKey    string
	ProjectID string
	BaseURL   string

	MaxNewTokens      int
	Temperature       *float64
	DecodingMethod    string
	TopP              *float64
	TopK              *int
	RepetitionPenalty *float64
	StopSequences     []string

	// ExtraHeaders are added to the generation request verbatim.
	ExtraHeaders map[string]string

	// Pricing overrides the model catalog for cost computation.
	Pricing *Pricing
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.APIKey == "" {
		o.APIKey = os.Getenv(EnvAPIKey)
	}
	if o.ProjectID == "" {
		o.ProjectID = os.Getenv(EnvProjectID)
	}
	if o.BaseURL == "" {
		o.BaseURL = os.Getenv(EnvBaseURL)
	}
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimSuffix(strings.TrimSpace(o.BaseURL), "/")
	if o.MaxNewTokens == 0 {
		o.MaxNewTokens = DefaultMaxNewTokens
	}
	if o.Temperature == nil {
		t := DefaultTemperature
		o.Temperature = &t
	}
	return o
}

// pricingFor resolves the effective pricing for a model: per-call override
// first, then the catalog (zero-priced for unknown models).
func (o StreamOptions) pricingFor(model string, models *catalog.Catalog) Pricing {
	if o.Pricing != nil {
		return *o.Pricing
	}
	m := models.Lookup(model)
	return Pricing{InputPerMTok: m.InputPerMTok, OutputPerMTok: m.OutputPerMTok}
}
