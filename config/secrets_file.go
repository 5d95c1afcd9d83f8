package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FileProvider resolves secret references by reading file contents, the
// way container and Lambda extension secrets are mounted.
type FileProvider struct {
	// AllowedPrefixes restricts readable paths. Empty allows any path.
	AllowedPrefixes []string
}

func (p *FileProvider) Scheme() string { return "file" }

func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("file path is empty")
	}
	if len(p.AllowedPrefixes) > 0 && !p.allowed(ref) {
		return "", fmt.Errorf("file path %q not under any allowed prefix", ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("reading secret file %q: %w", ref, err)
	}
	return strings.TrimRight(string(data), " \t\r\n"), nil
}

func (p *FileProvider) allowed(ref string) bool {
	for _, prefix := range p.AllowedPrefixes {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}
