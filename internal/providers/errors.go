package providers

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// UnknownProviderError reports a selection naming a provider that is not
// registered. It is returned before any other work happens.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// ConfigurationError reports a provider that cannot be used as configured,
// typically because no credential is present. It is always raised before a
// network attempt.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %s is not configured: %s", e.Provider, e.Reason)
}

// ErrorKind classifies a ProviderError.
type ErrorKind string

const (
	// KindStatus is a non-2xx HTTP response.
	KindStatus ErrorKind = "status"
	// KindDecode is a malformed or unexpected payload.
	KindDecode ErrorKind = "decode"
	// KindTransport is a connection, TLS or timeout failure.
	KindTransport ErrorKind = "transport"
)

// ProviderError is a failed provider call. It carries the provider and model
// so the message shown to the user identifies which call failed. Provider
// errors are never retried automatically.
type ProviderError struct {
	Provider string
	Model    string
	Kind     ErrorKind
	Status   int    // HTTP status for KindStatus, 0 otherwise
	Body     string // trimmed response body, if any
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "API Error (%s %s): ", e.Provider, e.Model)
	switch e.Kind {
	case KindStatus:
		fmt.Fprintf(&b, "HTTP %d", e.Status)
		if e.Body != "" {
			b.WriteString(": ")
			b.WriteString(e.Body)
		}
	default:
		b.WriteString(string(e.Kind))
		if e.Err != nil {
			b.WriteString(": ")
			b.WriteString(e.Err.Error())
		}
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

const maxErrorBody = 512

func clipBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		return body[:cut] + "..."
	}
	return body
}
