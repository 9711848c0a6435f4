// Provider HTTP handlers.
//
//   - GET /providers                  (registry listing with availability)
//   - GET /providers/{name}/models    (model catalog)
//   - PUT /providers/credentials      (replace credentials)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/providers"
)

// ProvidersResponse lists every registered provider.
type ProvidersResponse struct {
	Providers []providers.Status `json:"providers"`
}

// ModelsResponse lists the models of one provider.
type ModelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

// CredentialRequest is the configuration of one provider.
type CredentialRequest struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	// Enable=false turns a provider off even when it has a key.
	Enable *bool `json:"enable,omitempty"`
}

// UpdateCredentialsRequest replaces the credentials of the providers it
// names. Providers left out keep their current credentials.
type UpdateCredentialsRequest struct {
	Providers map[string]CredentialRequest `json:"providers"`
}

// ListProviders godoc
// @ID          listProviders
// @Summary     List providers
// @Tags        Providers
// @Produce     json
// @Success     200  {object}  handlers.ProvidersResponse
// @Router      /providers [get]
func (h *Handlers) ListProviders(c *gin.Context) {
	ok(c, http.StatusOK, ProvidersResponse{Providers: h.reg.Providers()})
}

// ListModels godoc
// @ID          listModels
// @Summary     List a provider's models
// @Description Queries the provider when it supports listing, otherwise returns a built-in list. Results are cached.
// @Tags        Providers
// @Produce     json
// @Param       name  path      string  true  "Provider name"  example(OpenAI)
// @Success     200   {object}  handlers.ModelsResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Unknown provider"
// @Failure     422   {object}  handlers.ErrorResponse  "Provider not configured"
// @Failure     502   {object}  handlers.ErrorResponse  "Provider failure"
// @Router      /providers/{name}/models [get]
func (h *Handlers) ListModels(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	models, err := h.models.List(c.Request.Context(), name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ModelsResponse{Provider: name, Models: models})
}

// UpdateCredentials godoc
// @ID          updateCredentials
// @Summary     Replace provider credentials
// @Description Replaces the credentials of each named provider (key, base URL and enable flag together) and drops their cached model lists. Providers not named keep their credentials. Generations already running keep their adapter.
// @Tags        Providers
// @Accept      json
// @Param       body  body  handlers.UpdateCredentialsRequest  true  "Credentials by provider name"
// @Success     204   {string}  string  "No Content"
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Router      /providers/credentials [put]
func (h *Handlers) UpdateCredentials(c *gin.Context) {
	var req UpdateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Providers == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "providers object required")
		return
	}
	creds := make(providers.Credentials, len(req.Providers))
	names := make([]string, 0, len(req.Providers))
	for name, cr := range req.Providers {
		names = append(names, name)
		creds[name] = providers.Credential{
			APIKey:   strings.TrimSpace(cr.APIKey),
			BaseURL:  strings.TrimSpace(cr.BaseURL),
			Disabled: cr.Enable != nil && !*cr.Enable,
		}
	}
	h.reg.Merge(creds)
	h.models.Invalidate(names...)
	noContent(c)
}
