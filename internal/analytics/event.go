package analytics

import "time"

const (
	TopicLinkCreated = "link.created"
	TopicLinkVisited = "link.visited"
)

// LinkCreatedEvent is emitted when a new mapping is stored.
type LinkCreatedEvent struct {
	Short     string    `json:"short"`
	Long      string    `json:"long"`
	CreatedAt time.Time `json:"createdAt"`
	ClientIP  string    `json:"clientIp"`
	UserAgent string    `json:"userAgent"`
}

// LinkVisitedEvent is emitted when a short identifier is resolved.
type LinkVisitedEvent struct {
	Short     string    `json:"short"`
	Visits    uint64    `json:"visits"`
	VisitedAt time.Time `json:"visitedAt"`
	ClientIP  string    `json:"clientIp"`
	UserAgent string    `json:"userAgent"`
	Referrer  string    `json:"referrer"`
}
