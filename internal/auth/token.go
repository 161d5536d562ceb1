// Package auth manages the bearer token guarding the MCP endpoint.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tokenFileName = "mcp-token"

// ResolveToken returns configured when set, otherwise the token persisted in
// dataDir, creating one on first use.
func ResolveToken(configured, dataDir string) (string, error) {
	if t := strings.TrimSpace(configured); t != "" {
		return t, nil
	}
	return LoadOrCreateToken(dataDir)
}

// LoadOrCreateToken reads dataDir/mcp-token, or generates and persists a new
// 256-bit hex token if the file is missing or blank.
func LoadOrCreateToken(dataDir string) (string, error) {
	path := filepath.Join(dataDir, tokenFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	}

	return RotateToken(dataDir)
}

// RotateToken replaces the persisted token. Clients holding the old one are
// rejected from then on.
func RotateToken(dataDir string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(b)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, tokenFileName), []byte(token+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write token: %w", err)
	}
	return token, nil
}

// TokenEqual compares tokens in constant time.
func TokenEqual(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
