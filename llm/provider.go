package llm

import (
	"maps"
	"net/http"
	"slices"
	"sync"
)

// Provider is a chat-completion wire protocol. Endpoints in the model
// registry name their provider; implementations register in init().
type Provider interface {
	// Name is the identifier used in endpoint configs.
	Name() string

	// BuildURL turns an endpoint base URL into the completion URL.
	// An empty base selects the provider's public default.
	BuildURL(baseURL string) string

	// APIKeyEnv is the credential variable used when the endpoint names none.
	APIKeyEnv() string

	// RequiresAPIKey reports whether requests fail without a credential.
	RequiresAPIKey() bool

	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody encodes the request. A nil temperature and a zero
	// maxTokens leave the endpoint defaults in place.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	ParseResponse(body []byte, model string) (*Response, error)
}

var providers = struct {
	sync.RWMutex
	byName map[string]Provider
}{byName: make(map[string]Provider)}

// RegisterProvider makes p available under p.Name(), replacing any
// provider already registered under that name.
func RegisterProvider(p Provider) {
	providers.Lock()
	defer providers.Unlock()
	providers.byName[p.Name()] = p
}

// GetProvider returns the named provider, or nil.
func GetProvider(name string) Provider {
	providers.RLock()
	defer providers.RUnlock()
	return providers.byName[name]
}

// ListProviders returns the registered provider names, sorted.
func ListProviders() []string {
	providers.RLock()
	defer providers.RUnlock()
	return slices.Sorted(maps.Keys(providers.byName))
}
