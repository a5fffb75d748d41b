package handlers_test

import (
	"context"
	"errors"

	"github.com/serroba/tierlink/internal/shortener"
)

var errMock = errors.New("mock error")

const (
	testURL      = "https://example.com"
	testShort    = "0123456789abcdef"
	testShortURL = "http://tier.app/r/0123456789abcdef"
	testFallback = "/index.html"
)

// mockService is a test double for LinkService.
type mockService struct {
	link       *shortener.Link
	resolution *shortener.Resolution
	counter    *shortener.VisitCounter

	shortenErr error
	resolveErr error
	statsErr   error

	shortened []string
	resolved  []shortener.Code
}

func (m *mockService) Shorten(_ context.Context, long string) (*shortener.Link, error) {
	m.shortened = append(m.shortened, long)

	if m.shortenErr != nil {
		return nil, m.shortenErr
	}

	return m.link, nil
}

func (m *mockService) Resolve(_ context.Context, short shortener.Code) (*shortener.Resolution, error) {
	m.resolved = append(m.resolved, short)

	if m.resolveErr != nil {
		return nil, m.resolveErr
	}

	if m.resolution == nil {
		return &shortener.Resolution{}, nil
	}

	return m.resolution, nil
}

func (m *mockService) Stats(_ context.Context, _ shortener.Code) (*shortener.VisitCounter, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}

	return m.counter, nil
}
