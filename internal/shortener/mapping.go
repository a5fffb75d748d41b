package shortener

import "time"

// Code is the opaque identifier appended to the base URL.
type Code string

// Mapping associates a short identifier with the URL it stands for.
type Mapping struct {
	Short     Code
	Long      string
	CreatedAt time.Time
}

// VisitCounter tracks how many times a short identifier was resolved.
type VisitCounter struct {
	Short  Code
	Visits uint64
}

// Link is the result of a shorten call.
type Link struct {
	Mapping

	// URL is the externally visible short URL.
	URL string
	// Created is false when an existing mapping was reused.
	Created bool
}

// Resolution is the result of a resolve call.
type Resolution struct {
	Found  bool
	Target string
	// Visits is the counter value after this visit, zero when it could not be recorded.
	Visits uint64
}
