// Package providers knows how to reach each supported LLM provider and turns
// their heterogeneous reply shapes into the normalized event stream of
// package stream.
//
// The Registry is a pure lookup table populated at startup: resolving a name,
// checking credentials and building an adapter never touch the network.
// Credentials are held by the Registry itself and replaced through Update, so
// settings changes apply to the next call without a restart.
package providers

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"resty.dev/v3"
)

// Family is the request/response shape shared by a group of providers.
type Family int

const (
	// FamilyOpenAI providers speak the OpenAI chat-completions API and stream
	// delta chunks; they are driven through the go-openai SDK.
	FamilyOpenAI Family = iota
	// FamilyBatch providers take a provider-specific JSON body and answer with
	// a single JSON document.
	FamilyBatch
	// FamilySSE providers accept an OpenAI-like body with stream=true and
	// answer with data:-prefixed JSON lines.
	FamilySSE
)

func (f Family) String() string {
	switch f {
	case FamilyOpenAI:
		return "openai-compatible"
	case FamilyBatch:
		return "batch"
	case FamilySSE:
		return "sse"
	}
	return "unknown"
}

// AuthStyle is where the credential goes on the request.
type AuthStyle int

const (
	AuthBearer AuthStyle = iota // Authorization: Bearer <key>
	AuthHeader                  // custom header, see Spec.AuthHeader
	AuthQuery                   // ?key=<key>
)

// Spec describes how to reach one provider.
type Spec struct {
	Name          string    `json:"name"`
	Family        Family    `json:"-"`
	BaseURL       string    `json:"base_url"`
	Auth          AuthStyle `json:"-"`
	AuthHeader    string    `json:"-"`
	CredentialEnv string    `json:"credential_env"`
	Streaming     bool      `json:"streaming"`
	DefaultModels []string  `json:"-"`
}

// Credential is the runtime configuration of a provider.
type Credential struct {
	APIKey   string
	BaseURL  string // overrides Spec.BaseURL when set
	Disabled bool
}

// Credentials maps provider names (case-insensitive) to credentials.
type Credentials map[string]Credential

// Status is a Spec plus whether the provider can currently be used.
type Status struct {
	Spec
	Family    string `json:"family"`
	Available bool   `json:"available"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithHTTPClient sets the HTTP client used by every adapter.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Registry) {
		if hc != nil {
			r.httpClient = hc
		}
	}
}

// WithSpecs registers additional providers or replaces built-in ones with the
// same name.
func WithSpecs(specs ...Spec) Option {
	return func(r *Registry) {
		for _, s := range specs {
			r.specs[key(s.Name)] = s
		}
	}
}

// Registry resolves provider names to connection parameters and adapters.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	specs      map[string]Spec
	creds      Credentials
	httpClient *http.Client
	resty      *resty.Client
}

// NewRegistry builds a registry over the built-in provider table.
func NewRegistry(creds Credentials, opts ...Option) *Registry {
	r := &Registry{
		specs:      make(map[string]Spec, len(builtinSpecs)),
		httpClient: http.DefaultClient,
	}
	for _, s := range builtinSpecs {
		r.specs[key(s.Name)] = s
	}
	for _, o := range opts {
		o(r)
	}
	r.resty = NewClient("providers", r.httpClient)
	r.creds = normalizeCredentials(creds)
	return r
}

// Merge replaces the credentials of the named providers and leaves every
// other provider's credential as it was.
func (r *Registry) Merge(creds Credentials) {
	next := normalizeCredentials(creds)
	r.mu.Lock()
	merged := make(Credentials, len(r.creds)+len(next))
	for k, c := range r.creds {
		merged[k] = c
	}
	for k, c := range next {
		merged[k] = c
	}
	r.creds = merged
	r.mu.Unlock()
}

// Update atomically replaces all credentials. Calls already in flight keep
// the credential they started with.
func (r *Registry) Update(creds Credentials) {
	next := normalizeCredentials(creds)
	r.mu.Lock()
	r.creds = next
	r.mu.Unlock()
}

// Resolve returns the connection parameters for name, with any configured
// base-URL override applied.
func (r *Registry) Resolve(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(name)
}

func (r *Registry) resolveLocked(name string) (Spec, error) {
	s, ok := r.specs[key(name)]
	if !ok {
		return Spec{}, &UnknownProviderError{Name: name}
	}
	if c, ok := r.creds[key(name)]; ok && c.BaseURL != "" {
		s.BaseURL = c.BaseURL
	}
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	return s, nil
}

// Available reports whether name can be dispatched to: it must be registered,
// enabled and have a credential.
func (r *Registry) Available(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, _, err := r.usableLocked(name)
	return err
}

func (r *Registry) usableLocked(name string) (Spec, Credential, error) {
	s, err := r.resolveLocked(name)
	if err != nil {
		return Spec{}, Credential{}, err
	}
	c := r.creds[key(name)]
	if c.Disabled {
		return Spec{}, Credential{}, &ConfigurationError{Provider: s.Name, Reason: "provider is disabled"}
	}
	if strings.TrimSpace(c.APIKey) == "" {
		reason := "no API key"
		if s.CredentialEnv != "" {
			reason += " (set " + s.CredentialEnv + ")"
		}
		return Spec{}, Credential{}, &ConfigurationError{Provider: s.Name, Reason: reason}
	}
	return s, c, nil
}

// Adapter returns a ready-to-use adapter for name. It fails with
// UnknownProviderError or ConfigurationError without any network access.
func (r *Registry) Adapter(name string) (Adapter, error) {
	r.mu.RLock()
	s, c, err := r.usableLocked(name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	switch s.Family {
	case FamilyOpenAI:
		return newOpenAIAdapter(s, c.APIKey, r.httpClient), nil
	case FamilySSE:
		return newSSEAdapter(s, c.APIKey, r.resty), nil
	default:
		return newBatchAdapter(s, c.APIKey, r.resty)
	}
}

// Providers lists every registered provider sorted by name.
func (r *Registry) Providers() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.specs))
	for k := range r.specs {
		s, _ := r.resolveLocked(k)
		_, _, err := r.usableLocked(k)
		out = append(out, Status{Spec: s, Family: s.Family.String(), Available: err == nil})
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i].Name) < key(out[j].Name) })
	return out
}

func normalizeCredentials(in Credentials) Credentials {
	out := make(Credentials, len(in))
	for name, c := range in {
		c.APIKey = strings.TrimSpace(c.APIKey)
		c.BaseURL = strings.TrimSpace(c.BaseURL)
		out[key(name)] = c
	}
	return out
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
