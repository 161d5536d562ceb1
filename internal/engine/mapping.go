package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/ohler55/ojg/jp"
)

const methodAny = "ANY"

// Mapping is a stub as stored by the engine.
type Mapping struct {
	ID       string             `json:"id"`
	Request  RequestPattern     `json:"request"`
	Response ResponseDefinition `json:"response"`

	compiled *compiledPattern
}

// RequestPattern selects which requests a mapping answers.
type RequestPattern struct {
	Method         string        `json:"method,omitempty"`
	URL            string        `json:"url,omitempty"`
	URLPath        string        `json:"urlPath,omitempty"`
	URLPattern     string        `json:"urlPattern,omitempty"`
	URLPathPattern string        `json:"urlPathPattern,omitempty"`
	BodyPatterns   []BodyPattern `json:"bodyPatterns,omitempty"`
}

// BodyPattern is one body condition. Exactly one field is set.
type BodyPattern struct {
	EqualTo         *string `json:"equalTo,omitempty"`
	Contains        *string `json:"contains,omitempty"`
	Matches         *string `json:"matches,omitempty"`
	MatchesJSONPath *string `json:"matchesJsonPath,omitempty"`
}

// ResponseDefinition is what a matched mapping answers with.
type ResponseDefinition struct {
	Status       int               `json:"status,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	JSONBody     json.RawMessage   `json:"jsonBody,omitempty"`
	Body         string            `json:"body,omitempty"`
	Transformers []string          `json:"transformers,omitempty"`
}

type compiledPattern struct {
	urlPattern     *regexp.Regexp
	urlPathPattern *regexp.Regexp
	bodies         []bodyMatcher
}

type bodyMatcher func(body string) bool

var errNoURLMatcher = errors.New("request needs one of url, urlPath, urlPattern or urlPathPattern")

// compile validates the mapping and prepares its regexes and JSON paths.
func (m *Mapping) compile() error {
	req := &m.Request
	req.Method = strings.ToUpper(strings.TrimSpace(req.Method))
	if req.Method == "" {
		req.Method = methodAny
	}

	set := 0
	for _, s := range []string{req.URL, req.URLPath, req.URLPattern, req.URLPathPattern} {
		if s != "" {
			set++
		}
	}
	if set == 0 {
		return errNoURLMatcher
	}
	if set > 1 {
		return errors.New("request must use only one of url, urlPath, urlPattern or urlPathPattern")
	}

	c := &compiledPattern{}
	var err error
	if req.URLPattern != "" {
		if c.urlPattern, err = anchored(req.URLPattern); err != nil {
			return fmt.Errorf("urlPattern: %w", err)
		}
	}
	if req.URLPathPattern != "" {
		if c.urlPathPattern, err = anchored(req.URLPathPattern); err != nil {
			return fmt.Errorf("urlPathPattern: %w", err)
		}
	}

	for i, bp := range req.BodyPatterns {
		matcher, err := bp.compile()
		if err != nil {
			return fmt.Errorf("bodyPatterns[%d]: %w", i, err)
		}
		c.bodies = append(c.bodies, matcher)
	}

	if m.Response.Status == 0 {
		m.Response.Status = http.StatusOK
	}
	if m.Response.Status < 100 || m.Response.Status > 599 {
		return fmt.Errorf("invalid response status %d", m.Response.Status)
	}

	m.compiled = c
	return nil
}

func (bp BodyPattern) compile() (bodyMatcher, error) {
	switch {
	case bp.EqualTo != nil:
		want := *bp.EqualTo
		return func(body string) bool { return body == want }, nil
	case bp.Contains != nil:
		want := *bp.Contains
		return func(body string) bool { return strings.Contains(body, want) }, nil
	case bp.Matches != nil:
		re, err := anchored(*bp.Matches)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	case bp.MatchesJSONPath != nil:
		expr, err := jp.ParseString(*bp.MatchesJSONPath)
		if err != nil {
			return nil, fmt.Errorf("parsing json path: %w", err)
		}
		return func(body string) bool {
			doc, ok := parseJSON(body)
			if !ok {
				return false
			}
			return len(expr.Get(doc)) > 0
		}, nil
	default:
		return nil, errors.New("empty body pattern")
	}
}

// matches reports whether r (with its already-read body) is answered by m.
func (m *Mapping) matches(r *http.Request, body string) bool {
	req := m.Request
	if req.Method != methodAny && req.Method != r.Method {
		return false
	}

	path := r.URL.Path
	pathAndQuery := r.URL.RequestURI()

	switch {
	case req.URL != "":
		if pathAndQuery != req.URL {
			return false
		}
	case req.URLPath != "":
		if path != req.URLPath {
			return false
		}
	case m.compiled.urlPattern != nil:
		if !m.compiled.urlPattern.MatchString(pathAndQuery) {
			return false
		}
	case m.compiled.urlPathPattern != nil:
		if !m.compiled.urlPathPattern.MatchString(path) {
			return false
		}
	}

	for _, match := range m.compiled.bodies {
		if !match(body) {
			return false
		}
	}
	return true
}

func (m *Mapping) templated(global bool) bool {
	return global || slices.Contains(m.Response.Transformers, TransformerResponseTemplate)
}

// anchored compiles a regex that must match the whole input.
func anchored(expr string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + expr + ")$")
}
