package config

import (
	"context"
	"fmt"
	"os"
)

// EnvProvider resolves secret references from environment variables.
type EnvProvider struct {
	// Lookup overrides os.LookupEnv.
	Lookup func(string) (string, bool)
}

func (p *EnvProvider) Scheme() string { return "env" }

func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	lookup := p.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	val, ok := lookup(ref)
	if !ok {
		return "", fmt.Errorf("environment variable %q not set", ref)
	}
	return val, nil
}
