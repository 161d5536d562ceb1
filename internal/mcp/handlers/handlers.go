// Package handlers implements the MCP tools exposed by tunnelmock serve.
package handlers

import (
	"context"

	"github.com/btouchard/tunnelmock/internal/admin"
	"github.com/btouchard/tunnelmock/internal/mockservice"
	"github.com/btouchard/tunnelmock/internal/stub"
)

// MockServer is the part of *mockserver.Server the tools drive.
type MockServer interface {
	PublicURL() string
	LocalURL() string
	Port() int
	Provider() string
	Mode() mockservice.Mode
	ManageMockEndpoint(ctx context.Context, stubJSON string) error
	CreateStub(ctx context.Context, def stub.Definition) error
	AllEvents(ctx context.Context) ([]admin.CapturedRequest, error)
	EndpointEvents(ctx context.Context, substring string) ([]string, error)
	CleanAllEvents(ctx context.Context) error
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func intArg(args map[string]any, name string, def int) int {
	if n, ok := args[name].(float64); ok && n > 0 {
		return int(n)
	}
	return def
}
