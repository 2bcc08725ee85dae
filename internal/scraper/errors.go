package scraper

import "fmt"

// FetchError reports a failure to retrieve a channel's preview page
// (network problem, timeout, or an unexpected HTTP status).
type FetchError struct {
	Username string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch channel %s: %v", e.Username, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports that a retrieved page did not match the expected
// channel preview template.
type ParseError struct {
	Username string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse channel %s: %v", e.Username, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
