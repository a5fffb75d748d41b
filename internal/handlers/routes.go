package handlers

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/tierlink/internal/ratelimit"
)

// RegisterRoutes registers the link routes with per-endpoint rate limit configuration.
func RegisterRoutes(api huma.API, linkHandler *LinkHandler) {
	// Writes get stricter limits.
	huma.Register(api, huma.Operation{
		OperationID: "shorten",
		Method:      http.MethodPost,
		Path:        "/api/v1/shorten",
		Summary:     "Shorten URL",
		Description: "Returns the short URL for the given URL, creating the mapping on first use.",
		Tags:        []string{"Links"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{
					{Window: time.Minute, Max: 10},
					{Window: time.Hour, Max: 100},
					{Window: 24 * time.Hour, Max: 500},
				},
			},
		},
	}, linkHandler.Shorten)

	huma.Register(api, huma.Operation{
		OperationID: "redirect",
		Method:      http.MethodGet,
		Path:        "/r/{id}",
		Summary:     "Redirect to original URL",
		Description: "Redirects to the URL behind the short identifier and counts the visit. Unknown identifiers redirect to the fallback page.",
		Tags:        []string{"Links"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{
					{Window: time.Minute, Max: 1000},
				},
				FailOpen: true,
			},
		},
	}, linkHandler.Redirect)

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats/{id}",
		Summary:     "Visit statistics",
		Description: "Returns how many times the short identifier was resolved.",
		Tags:        []string{"Links"},
	}, linkHandler.Stats)
}
