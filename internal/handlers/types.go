package handlers

// ShortenRequest is the request body for shortening a URL.
type ShortenRequest struct {
	Body struct {
		URL string `doc:"The URL to shorten" example:"https://example.com/very/long/path" json:"url" minLength:"1"`
	}
}

// ShortenResponse carries the short URL for the submitted URL.
type ShortenResponse struct {
	Body struct {
		URL string `doc:"The short URL" example:"http://tier.app/r/8c3b1f6d2a9e4705" json:"url"`
	}
}

// RedirectRequest is the request for resolving a short identifier.
type RedirectRequest struct {
	ID string `doc:"The short identifier" example:"8c3b1f6d2a9e4705" path:"id"`
}

// RedirectResponse redirects to the original URL or to the fallback page.
type RedirectResponse struct {
	Status   int
	Location string `doc:"The redirect target" header:"Location"`
}

// StatsRequest is the request for the visit counter of a short identifier.
type StatsRequest struct {
	ID string `doc:"The short identifier" example:"8c3b1f6d2a9e4705" path:"id"`
}

// StatsResponse reports how many times a short identifier was resolved.
type StatsResponse struct {
	Body struct {
		Short  string `doc:"The short identifier"    json:"short"`
		Visits uint64 `doc:"Number of resolutions" json:"visits"`
	}
}
