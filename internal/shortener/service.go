package shortener

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds identifier generation when inserts collide.
const DefaultMaxAttempts = 3

// CodeGenerator generates short identifiers.
type CodeGenerator func() string

// Service creates and resolves mappings.
type Service struct {
	mappings    Repository
	visits      VisitRepository
	generate    CodeGenerator
	baseURL     string
	maxAttempts int
	metrics     Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMaxAttempts sets how many identifiers Shorten tries before giving up
// on collisions.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithMetrics reports outcomes to m.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a mapping service. baseURL is the prefix short
// identifiers are appended to.
func NewService(
	mappings Repository,
	visits VisitRepository,
	generate CodeGenerator,
	baseURL string,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		mappings:    mappings,
		visits:      visits,
		generate:    generate,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		maxAttempts: DefaultMaxAttempts,
		metrics:     nopMetrics{},
		logger:      logger,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// URL returns the externally visible short URL for code.
func (s *Service) URL(code Code) string {
	return s.baseURL + "/" + string(code)
}

// Shorten returns the existing short URL for long or creates a new mapping.
func (s *Service) Shorten(ctx context.Context, long string) (*Link, error) {
	if long == "" {
		return nil, ErrInvalidURL
	}

	link, err := s.shorten(ctx, long)
	if err != nil {
		s.metrics.ObserveShorten(OutcomeError)

		return nil, err
	}

	if link.Created {
		s.metrics.ObserveShorten(OutcomeCreated)
	} else {
		s.metrics.ObserveShorten(OutcomeReused)
	}

	return link, nil
}

func (s *Service) shorten(ctx context.Context, long string) (*Link, error) {
	existing, err := s.mappings.FindByLong(ctx, long)
	if err == nil {
		return s.link(existing, false), nil
	}

	if !errors.Is(err, ErrNotFound) {
		return nil, storageError("find by long", err)
	}

	for attempt := 1; ; attempt++ {
		mapping := &Mapping{
			Short:     Code(s.generate()),
			Long:      long,
			CreatedAt: s.now(),
		}

		err = s.mappings.Insert(ctx, mapping)

		switch {
		case err == nil:
			return s.link(mapping, true), nil
		case errors.Is(err, ErrLongTaken):
			// A concurrent call stored the same long url first.
			return s.winner(ctx, long)
		case errors.Is(err, ErrShortTaken) && attempt < s.maxAttempts:
			s.logger.Warn("short identifier collision",
				zap.String("short", string(mapping.Short)),
				zap.Int("attempt", attempt),
			)

			continue
		default:
			return nil, storageError("insert", err)
		}
	}
}

func (s *Service) winner(ctx context.Context, long string) (*Link, error) {
	existing, err := s.mappings.FindByLong(ctx, long)
	if err != nil {
		return nil, storageError("find by long", err)
	}

	return s.link(existing, false), nil
}

func (s *Service) link(m *Mapping, created bool) *Link {
	return &Link{
		Mapping: *m,
		URL:     s.URL(m.Short),
		Created: created,
	}
}

// Resolve looks up short and records a visit. A missing mapping is not an
// error: the returned Resolution has Found set to false. Failing to record
// the visit is logged and does not affect the result.
func (s *Service) Resolve(ctx context.Context, short Code) (*Resolution, error) {
	mapping, err := s.mappings.FindByShort(ctx, short)
	if errors.Is(err, ErrNotFound) {
		s.metrics.ObserveResolve(OutcomeNotFound)

		return &Resolution{}, nil
	}

	if err != nil {
		s.metrics.ObserveResolve(OutcomeError)

		return nil, storageError("find by short", err)
	}

	res := &Resolution{Found: true, Target: mapping.Long}

	visits, err := s.visits.IncrementVisits(ctx, mapping.Short)
	if err != nil {
		s.logger.Warn("failed to record visit",
			zap.String("short", string(mapping.Short)),
			zap.Error(err),
		)
		s.metrics.ObserveResolve(OutcomeVisitError)

		return res, nil
	}

	res.Visits = visits
	s.metrics.ObserveResolve(OutcomeFound)

	return res, nil
}

// Stats returns the visit counter of an existing mapping.
func (s *Service) Stats(ctx context.Context, short Code) (*VisitCounter, error) {
	if _, err := s.mappings.FindByShort(ctx, short); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}

		return nil, storageError("find by short", err)
	}

	visits, err := s.visits.Visits(ctx, short)
	if err != nil {
		return nil, storageError("visits", err)
	}

	return &VisitCounter{Short: short, Visits: visits}, nil
}
