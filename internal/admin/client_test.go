package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/tunnelmock/internal/stub"
)

func TestCreateStub_PostsMappingPayload(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath, gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	def, err := stub.ForURL("/default", `{"default":true,"success":true}`, nil, "POST", 200)
	require.NoError(t, err)

	resp, err := New(srv.URL).CreateStub(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"id":"abc"}`, string(resp.Body))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/__admin/mappings", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	request, ok := gotBody["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/default", request["url"])
}

func TestCreateStubJSON_WhenEngineRejects_ReturnsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad mapping", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateStubJSON(context.Background(), []byte(`{}`))
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "bad mapping")
}

func TestListRequests_DecodesServeEvents(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/__admin/requests", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"requests": [
				{"id":"2","request":{"url":"/bar/2","method":"POST","body":"{\"n\":2}","loggedDate":1700000000000},"wasMatched":true},
				{"id":"1","request":{"url":"/nope","method":"GET","body":"","loggedDate":1699999999000},"wasMatched":false}
			],
			"meta": {"total": 2}
		}`)
	}))
	defer srv.Close()

	reqs, err := New(srv.URL).ListRequests(context.Background())
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "2", reqs[0].ID)
	assert.Equal(t, "POST", reqs[0].Method)
	assert.Equal(t, "/bar/2", reqs[0].URL)
	assert.Equal(t, `{"n":2}`, reqs[0].Body)
	assert.True(t, reqs[0].Matched)
	assert.Equal(t, int64(1700000000000), reqs[0].LoggedDate.UnixMilli())
	assert.False(t, reqs[1].Matched)
}

func TestListRequests_WhenBodyIsNotJSON_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	_, err := New(srv.URL).ListRequests(context.Background())
	assert.ErrorContains(t, err, "decoding serve events")
}

func TestClearRequests_SendsDelete(t *testing.T) {
	t.Parallel()

	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).ClearRequests(context.Background()))
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestHealthCheck_ReturnsStatusWithoutError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL)
	code, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	var statusErr *StatusError
	require.ErrorAs(t, c.Healthy(context.Background()), &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestHealthCheck_WhenUnreachable_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).HealthCheck(context.Background())
	assert.ErrorContains(t, err, "health check")
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://localhost:8123", New("http://localhost:8123/").BaseURL())
}

func TestWithInsecureTLS_AcceptsSelfSignedCertificate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"mappings":[],"meta":{"total":0}}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).ListMappings(context.Background())
	require.Error(t, err)

	mappings, err := New(srv.URL, WithInsecureTLS()).ListMappings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestReset_PostsToResetPath(t *testing.T) {
	t.Parallel()

	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).Reset(context.Background()))
	assert.Equal(t, "/__admin/reset", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestInsecureHTTPClient_AcceptsSelfSignedCertificate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := InsecureHTTPClient(5 * time.Second).Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTruncate_BacksOffToRuneBoundary(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", maxErrorBody-1) + "é trailing"

	got := truncate(s)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxErrorBody-1)+"...", got)
}
