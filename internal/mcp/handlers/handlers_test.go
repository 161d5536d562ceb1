package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/tunnelmock/internal/admin"
	"github.com/btouchard/tunnelmock/internal/mockservice"
	"github.com/btouchard/tunnelmock/internal/poll"
	"github.com/btouchard/tunnelmock/internal/store"
	"github.com/btouchard/tunnelmock/internal/stub"
)

func makeReq(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	tc, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

type fakeMockServer struct {
	mu        sync.Mutex
	stubs     []stub.Definition
	raw       []string
	requests  []admin.CapturedRequest
	eventsErr error
	failWith  error
	cleared   int
}

func (f *fakeMockServer) PublicURL() string      { return "https://abc.example.test" }
func (f *fakeMockServer) LocalURL() string       { return "http://localhost:41234" }
func (f *fakeMockServer) Port() int              { return 41234 }
func (f *fakeMockServer) Provider() string       { return "pinggy" }
func (f *fakeMockServer) Mode() mockservice.Mode { return mockservice.ModeLocal }

func (f *fakeMockServer) ManageMockEndpoint(_ context.Context, stubJSON string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, stubJSON)
	return nil
}

func (f *fakeMockServer) CreateStub(_ context.Context, def stub.Definition) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append(f.stubs, def)
	return nil
}

func (f *fakeMockServer) AllEvents(context.Context) ([]admin.CapturedRequest, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.requests, nil
}

func (f *fakeMockServer) EndpointEvents(_ context.Context, substring string) ([]string, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	var bodies []string
	for _, r := range f.requests {
		if strings.Contains(r.URL, substring) {
			bodies = append(bodies, r.Body)
		}
	}
	return bodies, nil
}

func (f *fakeMockServer) CleanAllEvents(context.Context) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.cleared++
	f.requests = nil
	return nil
}

func TestServerInfo_ReportsURLsAndProvider(t *testing.T) {
	t.Parallel()

	result, err := ServerInfo(&fakeMockServer{})(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "https://abc.example.test")
	assert.Contains(t, text, "pinggy")
	assert.Contains(t, text, "http://localhost:41234")
	assert.Contains(t, text, "local")
}

func TestCreateStub_WithURL_InstallsDefinition(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{}
	result, err := CreateStub(ms)(context.Background(), makeReq(map[string]any{
		"url":     "/orders",
		"method":  "post",
		"status":  float64(201),
		"body":    `{"id": 7}`,
		"headers": map[string]any{"X-Trace": "on"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))

	require.Len(t, ms.stubs, 1)
	def := ms.stubs[0]
	assert.Equal(t, "POST", def.Request.Method)
	assert.Equal(t, "/orders", def.Request.URL)
	assert.Equal(t, 201, def.Response.Status)
	assert.Equal(t, "on", def.Response.Headers["X-Trace"])
	assert.Equal(t, "application/json", def.Response.Headers["Content-Type"])
	assert.Contains(t, resultText(t, result), "https://abc.example.test")
}

func TestCreateStub_WithPattern_ReportsPattern(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{}
	result, err := CreateStub(ms)(context.Background(), makeReq(map[string]any{
		"url_pattern": "/items/.*",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Len(t, ms.stubs, 1)
	assert.Equal(t, "/items/.*", ms.stubs[0].Request.URLPathPattern)
	assert.Equal(t, "GET", ms.stubs[0].Request.Method)
	assert.Contains(t, resultText(t, result), "(pattern)")
}

func TestCreateStub_WhenBothURLAndPattern_ReturnsError(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{}
	result, err := CreateStub(ms)(context.Background(), makeReq(map[string]any{
		"url":         "/a",
		"url_pattern": "/a.*",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, ms.stubs)
}

func TestCreateStub_WhenBodyIsNotJSON_ReturnsError(t *testing.T) {
	t.Parallel()

	result, err := CreateStub(&fakeMockServer{})(context.Background(), makeReq(map[string]any{
		"url":  "/a",
		"body": "not json",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Invalid stub")
}

func TestCreateStub_WhenEngineRejects_ReturnsError(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{failWith: errors.New("boom")}
	result, err := CreateStub(ms)(context.Background(), makeReq(map[string]any{"url": "/a"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "boom")
}

func TestInstallStubJSON_PassesMappingThrough(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{}
	mapping := `{"request":{"method":"GET","url":"/x"},"response":{"status":204}}`
	result, err := InstallStubJSON(ms)(context.Background(), makeReq(map[string]any{"mapping": mapping}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{mapping}, ms.raw)
}

func TestInstallStubJSON_RejectsMissingOrInvalidMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing", map[string]any{}},
		{"invalid", map[string]any{"mapping": "{nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ms := &fakeMockServer{}
			result, err := InstallStubJSON(ms)(context.Background(), makeReq(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Empty(t, ms.raw)
		})
	}
}

func capturedFixture() []admin.CapturedRequest {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []admin.CapturedRequest{
		{ID: "3", Method: "POST", URL: "/hooks/b", Body: `{"n":3}`, LoggedDate: now.Add(2 * time.Second), Matched: true},
		{ID: "2", Method: "GET", URL: "/missing", LoggedDate: now.Add(time.Second)},
		{ID: "1", Method: "POST", URL: "/hooks/a", Body: `{"n":1}`, LoggedDate: now, Matched: true},
	}
}

func TestListRequests_FiltersAndLimits(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{requests: capturedFixture()}
	result, err := ListRequests(ms)(context.Background(), makeReq(map[string]any{
		"url_contains": "/hooks",
		"limit":        float64(1),
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "2 request(s) captured, showing the 1 most recent")
	assert.Contains(t, text, "/hooks/b")
	assert.NotContains(t, text, "/hooks/a")
	assert.NotContains(t, text, "/missing")
}

func TestListRequests_MarksUnmatched(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{requests: capturedFixture()}
	result, err := ListRequests(ms)(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "GET /missing (unmatched)")
}

func TestListRequests_WhenEmpty_SaysSo(t *testing.T) {
	t.Parallel()

	result, err := ListRequests(&fakeMockServer{})(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.Equal(t, "No requests captured.", resultText(t, result))
}

func TestWaitForRequests_ReturnsBodies(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{requests: capturedFixture()}
	result, err := WaitForRequests(ms)(context.Background(), makeReq(map[string]any{"url_contains": "/hooks"}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, `2 request(s) to "/hooks"`)
	assert.Contains(t, text, `{"n":3}`)
	assert.Contains(t, text, `{"n":1}`)
}

func TestWaitForRequests_WhenTimeout_IsNotAnError(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{eventsErr: poll.ErrTimeout}
	result, err := WaitForRequests(ms)(context.Background(), makeReq(map[string]any{"url_contains": "/late"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "before the timeout")
}

func TestWaitForRequests_RequiresSubstring(t *testing.T) {
	t.Parallel()

	result, err := WaitForRequests(&fakeMockServer{})(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestClearRequests_EmptiesJournal(t *testing.T) {
	t.Parallel()

	ms := &fakeMockServer{requests: capturedFixture()}
	result, err := ClearRequests(ms)(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 1, ms.cleared)
	assert.Empty(t, ms.requests)
}

type fakeHistory struct {
	filter   store.AttemptFilter
	attempts []store.AttemptRecord
	stats    []store.ProviderStat
	err      error
}

func (f *fakeHistory) ListAttempts(filter store.AttemptFilter) ([]store.AttemptRecord, error) {
	f.filter = filter
	return f.attempts, f.err
}

func (f *fakeHistory) ProviderStats(time.Time) ([]store.ProviderStat, error) {
	return f.stats, f.err
}

func TestTunnelHistory_RendersStatsAndAttempts(t *testing.T) {
	t.Parallel()

	h := &fakeHistory{
		attempts: []store.AttemptRecord{
			{Provider: "pinggy", Port: 40000, Attempt: 1, Outcome: store.OutcomeFailed, Error: "probe failed", CreatedAt: time.Now()},
			{Provider: "serveo", Port: 40000, Attempt: 2, Outcome: store.OutcomeEstablished, PublicURL: "https://x.serveo.net", CreatedAt: time.Now()},
		},
		stats: []store.ProviderStat{
			{Provider: "serveo", Attempts: 2, Established: 1, AvgEstablish: 1500 * time.Millisecond},
		},
	}

	result, err := TunnelHistory(h)(context.Background(), makeReq(map[string]any{
		"provider": "serveo",
		"limit":    float64(5),
	}))
	require.NoError(t, err)

	assert.Equal(t, "serveo", h.filter.Provider)
	assert.Equal(t, 5, h.filter.Limit)

	text := resultText(t, result)
	assert.Contains(t, text, "50% established")
	assert.Contains(t, text, "avg 1.5s")
	assert.Contains(t, text, "error: probe failed")
	assert.Contains(t, text, "https://x.serveo.net")
}

func TestTunnelHistory_WhenStoreFails_ReturnsError(t *testing.T) {
	t.Parallel()

	result, err := TunnelHistory(&fakeHistory{err: errors.New("db locked")})(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestFormatHistory_WhenEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "No tunnel attempts recorded.", FormatHistory(nil, nil))
}

func TestTruncate_KeepsValidUTF8(t *testing.T) {
	t.Parallel()

	// "日" is three bytes; a cut at 4 falls inside the second one.
	got := truncate("日本語", 4)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "日…", got)
	assert.Equal(t, "short", truncate("short", 10))
}
