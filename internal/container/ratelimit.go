package container

import (
	"time"

	"github.com/serroba/tierlink/internal/ratelimit"
	"github.com/serroba/tierlink/internal/store"
	"go.uber.org/zap"
)

// defaultLimits apply to operations without their own configuration.
var defaultLimits = []ratelimit.LimitConfig{
	{Window: time.Minute, Max: 100},
}

// maxWindow is the longest window configured on any operation.
const maxWindow = 24 * time.Hour

// rateLimitSweeper periodically drops idle keys from the in-memory counters.
type rateLimitSweeper struct {
	stop chan struct{}
	done chan struct{}
}

func startRateLimitSweeper(
	s *store.RateLimitMemoryStore, every, window time.Duration, logger *zap.Logger,
) *rateLimitSweeper {
	sw := &rateLimitSweeper{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(sw.done)

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logger.Debug("swept rate limit counters", zap.Int("keys", s.Sweep(window)))
			case <-sw.stop:
				return
			}
		}
	}()

	return sw
}

// Shutdown stops the sweeper. It is called by the injector.
func (s *rateLimitSweeper) Shutdown() error {
	close(s.stop)
	<-s.done

	return nil
}
