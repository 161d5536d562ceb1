// Package stub builds WireMock stub mappings.
package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// TransformerResponseTemplate enables request-derived values in response bodies.
const TransformerResponseTemplate = "response-template"

var defaultHeaders = map[string]string{
	"Content-Type": "application/json",
}

// Definition is a stub mapping in the shape accepted by POST /__admin/mappings.
type Definition struct {
	Request  RequestMatcher `json:"request"`
	Response Response       `json:"response"`
}

// RequestMatcher matches on method plus exactly one of URL or URLPathPattern.
type RequestMatcher struct {
	Method         string `json:"method"`
	URL            string `json:"url,omitempty"`
	URLPathPattern string `json:"urlPathPattern,omitempty"`
}

type Response struct {
	Status       int               `json:"status"`
	JSONBody     any               `json:"jsonBody,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Transformers []string          `json:"transformers,omitempty"`
}

// Options describe a stub before it is turned into a Definition.
type Options struct {
	URL        string
	URLPattern string
	// Body is JSON text. It is parsed so the engine receives an object, not a string.
	Body    string
	Headers map[string]string
	Method  string
	Status  int
}

// Build turns Options into a Definition. Caller headers override the defaults.
func Build(opts Options) (Definition, error) {
	if (opts.URL == "") == (opts.URLPattern == "") {
		return Definition{}, errors.New("exactly one of URL or URLPattern is required")
	}

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	status := opts.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status < 100 || status > 599 {
		return Definition{}, fmt.Errorf("invalid status code %d", status)
	}

	var body any
	if strings.TrimSpace(opts.Body) != "" {
		if err := json.Unmarshal([]byte(opts.Body), &body); err != nil {
			return Definition{}, fmt.Errorf("parsing response body: %w", err)
		}
	}

	return Definition{
		Request: RequestMatcher{
			Method:         method,
			URL:            opts.URL,
			URLPathPattern: opts.URLPattern,
		},
		Response: Response{
			Status:       status,
			JSONBody:     body,
			Headers:      MergeHeaders(opts.Headers),
			Transformers: []string{TransformerResponseTemplate},
		},
	}, nil
}

// ForURL builds a stub matching an exact URL.
func ForURL(url, body string, headers map[string]string, method string, status int) (Definition, error) {
	return Build(Options{URL: url, Body: body, Headers: headers, Method: method, Status: status})
}

// ForURLPattern builds a stub matching a URL path regex.
func ForURLPattern(pattern, body string, headers map[string]string, method string, status int) (Definition, error) {
	return Build(Options{URLPattern: pattern, Body: body, Headers: headers, Method: method, Status: status})
}

// MergeHeaders returns the default header set overlaid with extra.
func MergeHeaders(extra map[string]string) map[string]string {
	merged := maps.Clone(defaultHeaders)
	maps.Copy(merged, extra)
	return merged
}

// JSON encodes the definition as an admin API payload.
func (d Definition) JSON() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding stub: %w", err)
	}
	return data, nil
}
