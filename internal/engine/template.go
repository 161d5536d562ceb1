package engine

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// TransformerResponseTemplate marks a mapping whose body is a Handlebars template.
const TransformerResponseTemplate = "response-template"

// render executes body as a Handlebars template against the request.
func render(body string, r *http.Request, reqBody string) (string, error) {
	tpl, err := raymond.Parse(body)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	tpl.RegisterHelper("jsonPath", jsonPathHelper)

	out, err := tpl.Exec(templateContext(r, reqBody))
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return out, nil
}

func templateContext(r *http.Request, body string) map[string]any {
	headers := make(map[string]string, len(r.Header)*2)
	for name, values := range r.Header {
		v := strings.Join(values, ",")
		headers[name] = v
		headers[strings.ToLower(name)] = v
	}

	query := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	return map[string]any{
		"request": map[string]any{
			"url":     r.URL.RequestURI(),
			"path":    r.URL.Path,
			"method":  r.Method,
			"body":    body,
			"headers": headers,
			"query":   query,
		},
	}
}

// jsonPathHelper implements {{jsonPath request.body '$.field'}}.
func jsonPathHelper(doc string, path string) raymond.SafeString {
	expr, err := jp.ParseString(path)
	if err != nil {
		return ""
	}
	data, ok := parseJSON(doc)
	if !ok {
		return ""
	}
	results := expr.Get(data)
	if len(results) == 0 {
		return ""
	}
	if s, ok := results[0].(string); ok {
		return raymond.SafeString(s)
	}
	return raymond.SafeString(oj.JSON(results[0]))
}

func parseJSON(s string) (any, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	data, err := oj.ParseString(s)
	if err != nil {
		return nil, false
	}
	return data, true
}
