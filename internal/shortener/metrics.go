package shortener

// Shorten and resolve outcomes reported to Metrics.
const (
	OutcomeCreated    = "created"
	OutcomeReused     = "reused"
	OutcomeFound      = "found"
	OutcomeNotFound   = "not_found"
	OutcomeVisitError = "visit_error"
	OutcomeError      = "error"
)

// Metrics observes service outcomes.
type Metrics interface {
	ObserveShorten(outcome string)
	ObserveResolve(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveShorten(string) {}
func (nopMetrics) ObserveResolve(string) {}
