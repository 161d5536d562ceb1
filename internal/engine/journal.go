package engine

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServeEvent is one request recorded by the engine, matched or not.
type ServeEvent struct {
	ID         string        `json:"id"`
	Request    LoggedRequest `json:"request"`
	WasMatched bool          `json:"wasMatched"`
	MappingID  string        `json:"stubMappingId,omitempty"`
}

// LoggedRequest is the request half of a ServeEvent.
type LoggedRequest struct {
	URL              string            `json:"url"`
	AbsoluteURL      string            `json:"absoluteUrl"`
	Method           string            `json:"method"`
	Body             string            `json:"body"`
	Headers          map[string]string `json:"headers"`
	LoggedDate       int64             `json:"loggedDate"`
	LoggedDateString string            `json:"loggedDateString"`
}

// journal keeps the most recent serve events, oldest dropped first.
type journal struct {
	mu     sync.Mutex
	events []ServeEvent
	limit  int
}

func newJournal(limit int) *journal {
	return &journal{limit: limit}
}

func (j *journal) record(r *http.Request, body string, mappingID string, now time.Time) ServeEvent {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		headers[name] = strings.Join(values, ",")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	ev := ServeEvent{
		ID: uuid.NewString(),
		Request: LoggedRequest{
			URL:              r.URL.RequestURI(),
			AbsoluteURL:      scheme + "://" + r.Host + r.URL.RequestURI(),
			Method:           r.Method,
			Body:             body,
			Headers:          headers,
			LoggedDate:       now.UnixMilli(),
			LoggedDateString: now.UTC().Format(time.RFC3339Nano),
		},
		WasMatched: mappingID != "",
		MappingID:  mappingID,
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	if j.limit > 0 && len(j.events) > j.limit {
		j.events = j.events[len(j.events)-j.limit:]
	}
	return ev
}

// list returns events newest first.
func (j *journal) list() []ServeEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]ServeEvent, len(j.events))
	for i, ev := range j.events {
		out[len(j.events)-1-i] = ev
	}
	return out
}

func (j *journal) clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = nil
}
