package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"resty.dev/v3"
)

type startedAtKey struct{}

// NewClient returns a resty client that logs every provider call with its
// status and latency at debug level. Request bodies are never logged since
// they carry user conversations.
func NewClient(name string, hc *http.Client) *resty.Client {
	client := resty.NewWithClient(hc)
	client.AddRequestMiddleware(func(_ *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), startedAtKey{}, time.Now()))
		return nil
	})
	client.AddResponseMiddleware(func(_ *resty.Client, r *resty.Response) error {
		started, _ := r.Request.Context().Value(startedAtKey{}).(time.Time)
		ev := log.Debug().
			Str("client", name).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(started))
		if raw := r.Request.RawRequest; raw != nil {
			ev = ev.Str("method", raw.Method).Str("host", raw.URL.Host).Str("path", raw.URL.Path)
		}
		ev.Msg("provider http call")
		return nil
	})
	return client
}
