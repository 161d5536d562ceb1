package admin

import (
	"fmt"
	"time"
)

// CapturedRequest is one request recorded by the engine's request journal.
type CapturedRequest struct {
	ID         string
	Method     string
	URL        string
	Body       string
	LoggedDate time.Time
	Matched    bool
}

// Response is the raw outcome of an admin call.
type Response struct {
	StatusCode int
	Body       []byte
}

// StatusError is returned when the engine answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

// serveEventsResult mirrors GET /__admin/requests.
type serveEventsResult struct {
	Requests []serveEvent `json:"requests"`
	Meta     struct {
		Total int `json:"total"`
	} `json:"meta"`
}

type serveEvent struct {
	ID         string         `json:"id"`
	Request    loggedRequest  `json:"request"`
	WasMatched bool           `json:"wasMatched"`
	Response   map[string]any `json:"responseDefinition,omitempty"`
}

type loggedRequest struct {
	URL         string `json:"url"`
	AbsoluteURL string `json:"absoluteUrl"`
	Method      string `json:"method"`
	Body        string `json:"body"`
	LoggedDate  int64  `json:"loggedDate"`
}

// mappingsResult mirrors GET /__admin/mappings.
type mappingsResult struct {
	Mappings []Mapping `json:"mappings"`
	Meta     struct {
		Total int `json:"total"`
	} `json:"meta"`
}

// Mapping is a stub as reported back by the engine.
type Mapping struct {
	ID       string         `json:"id"`
	Request  map[string]any `json:"request"`
	Response map[string]any `json:"response"`
}
