package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/tierlink/internal/analytics"
	"github.com/serroba/tierlink/internal/messaging"
	"github.com/serroba/tierlink/internal/shortener"
	"go.uber.org/zap"
)

// LinkService is the mapping service used by LinkHandler.
type LinkService interface {
	Shorten(ctx context.Context, long string) (*shortener.Link, error)
	Resolve(ctx context.Context, short shortener.Code) (*shortener.Resolution, error)
	Stats(ctx context.Context, short shortener.Code) (*shortener.VisitCounter, error)
}

// LinkHandler handles shorten, redirect and stats operations.
type LinkHandler struct {
	service            LinkService
	fallbackURL        string
	publishLinkCreated messaging.Publish[analytics.LinkCreatedEvent]
	publishLinkVisited messaging.Publish[analytics.LinkVisitedEvent]
	logger             *zap.Logger
}

// NewLinkHandler creates a new link handler. Unknown identifiers are
// redirected to fallbackURL.
func NewLinkHandler(
	service LinkService,
	fallbackURL string,
	publishLinkCreated messaging.Publish[analytics.LinkCreatedEvent],
	publishLinkVisited messaging.Publish[analytics.LinkVisitedEvent],
	logger *zap.Logger,
) *LinkHandler {
	return &LinkHandler{
		service:            service,
		fallbackURL:        fallbackURL,
		publishLinkCreated: publishLinkCreated,
		publishLinkVisited: publishLinkVisited,
		logger:             logger,
	}
}

type requestMetaKey struct{}

// RequestMeta holds HTTP request metadata for analytics.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	Referrer  string
}

// ContextWithRequestMeta adds request metadata to context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}

	return RequestMeta{}
}

func (h *LinkHandler) Shorten(ctx context.Context, req *ShortenRequest) (*ShortenResponse, error) {
	link, err := h.service.Shorten(ctx, req.Body.URL)
	if err != nil {
		if errors.Is(err, shortener.ErrInvalidURL) {
			return nil, huma.Error422UnprocessableEntity("invalid url")
		}

		h.logger.Error("failed to shorten url", zap.String("url", req.Body.URL), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to save url")
	}

	if link.Created {
		meta := RequestMetaFromContext(ctx)
		event := &analytics.LinkCreatedEvent{
			Short:     string(link.Short),
			Long:      link.Long,
			CreatedAt: link.CreatedAt,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
		}

		if err := h.publishLinkCreated(ctx, event); err != nil {
			h.logger.Error("failed to publish link created event",
				zap.String("short", event.Short),
				zap.Error(err),
			)
		}
	}

	resp := &ShortenResponse{}
	resp.Body.URL = link.URL

	return resp, nil
}

func (h *LinkHandler) Redirect(ctx context.Context, req *RedirectRequest) (*RedirectResponse, error) {
	res, err := h.service.Resolve(ctx, shortener.Code(req.ID))
	if err != nil {
		h.logger.Error("failed to resolve short identifier", zap.String("short", req.ID), zap.Error(err))

		return h.fallback(), nil
	}

	if !res.Found {
		return h.fallback(), nil
	}

	meta := RequestMetaFromContext(ctx)
	event := &analytics.LinkVisitedEvent{
		Short:     req.ID,
		Visits:    res.Visits,
		VisitedAt: time.Now(),
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		Referrer:  meta.Referrer,
	}

	if err := h.publishLinkVisited(ctx, event); err != nil {
		h.logger.Error("failed to publish link visited event",
			zap.String("short", event.Short),
			zap.Error(err),
		)
	}

	return &RedirectResponse{
		Status:   http.StatusPermanentRedirect,
		Location: res.Target,
	}, nil
}

func (h *LinkHandler) fallback() *RedirectResponse {
	return &RedirectResponse{
		Status:   http.StatusFound,
		Location: h.fallbackURL,
	}
}

func (h *LinkHandler) Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	counter, err := h.service.Stats(ctx, shortener.Code(req.ID))
	if err != nil {
		if errors.Is(err, shortener.ErrNotFound) {
			return nil, huma.Error404NotFound("short url not found")
		}

		return nil, huma.Error500InternalServerError("failed to get stats")
	}

	resp := &StatsResponse{}
	resp.Body.Short = string(counter.Short)
	resp.Body.Visits = counter.Visits

	return resp, nil
}
