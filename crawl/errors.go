package crawl

import "errors"

var (
	// ErrInvalidURL indicates a root or page URL that is not absolute http(s).
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnexpectedStatus indicates a non-200 response.
	ErrUnexpectedStatus = errors.New("unexpected http status")

	// ErrTooLarge indicates a body over the configured size limit.
	ErrTooLarge = errors.New("response body too large")
)
