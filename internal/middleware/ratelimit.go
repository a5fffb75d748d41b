package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/tierlink/internal/ratelimit"
	"go.uber.org/zap"
)

// Limiter decides whether a client may call an operation.
type Limiter interface {
	Allow(ctx context.Context, clientKey string, op *huma.Operation) (*ratelimit.Exceeded, error)
}

// RateLimiter returns a Huma middleware that limits requests per client,
// identified by IP and User-Agent, using the limits attached to each
// operation. Limiter errors fail with 500 unless the operation is marked
// FailOpen.
func RateLimiter(api huma.API, limiter Limiter, logger *zap.Logger) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()

		exceeded, err := limiter.Allow(ctx.Context(), clientKey(ctx), op)
		if err != nil {
			logger.Error("rate limit check failed", zap.String("path", operationPath(op)), zap.Error(err))

			if ratelimit.FailsOpen(op) {
				next(ctx)

				return
			}

			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		if exceeded != nil {
			logger.Warn("rate limit exceeded",
				zap.String("path", operationPath(op)),
				zap.String("method", ctx.Method()),
				zap.Int64("count", exceeded.Count),
				zap.Int64("max", exceeded.Limit.Max),
				zap.Duration("window", exceeded.Limit.Window),
				zap.String("client_ip", clientIP(ctx)),
			)
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, "rate limit exceeded: "+exceeded.String())

			return
		}

		next(ctx)
	}
}

// clientKey hashes IP and User-Agent into a rate limit key.
func clientKey(ctx huma.Context) string {
	hash := sha256.Sum256([]byte(clientIP(ctx) + "|" + ctx.Header("User-Agent")))

	return hex.EncodeToString(hash[:])
}

func operationPath(op *huma.Operation) string {
	if op == nil {
		return ""
	}

	return op.Path
}
