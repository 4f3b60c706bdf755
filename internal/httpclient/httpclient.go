package httpclient

import (
	"net/http"
	"time"
)

// Default returns an HTTP client with timeouts so that a dead upstream
// doesn't hang a request forever. Use for short-lived fetches: health
// checks and one-off lookups, as opposed to the long-lived stream pull
// ForStreaming is for.
func Default() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			ResponseHeaderTimeout: 15 * time.Second,
			ExpectContinueTimeout: 5 * time.Second,
			IdleConnTimeout:       30 * time.Second,
		},
	}
}

// ForStreaming returns a client with no overall timeout (a source stream
// may run for hours) but a ResponseHeaderTimeout so the source pipe still
// notices and throws UPROBE_FATAL when the upstream never responds.
func ForStreaming() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: 15 * time.Second,
			ExpectContinueTimeout: 5 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
