package config

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
)

// SecretProvider resolves secret references for one scheme.
type SecretProvider interface {
	Scheme() string
	Resolve(ctx context.Context, reference string) (string, error)
}

// SecretRegistry maps schemes to providers.
type SecretRegistry struct {
	providers map[string]SecretProvider
}

// NewSecretRegistry creates an empty registry.
func NewSecretRegistry() *SecretRegistry {
	return &SecretRegistry{providers: make(map[string]SecretProvider)}
}

// Register adds p, replacing any provider with the same scheme.
func (r *SecretRegistry) Register(p SecretProvider) {
	r.providers[p.Scheme()] = p
}

// Clone returns a shallow copy so per-parse additions don't mutate the base.
func (r *SecretRegistry) Clone() *SecretRegistry {
	c := &SecretRegistry{providers: make(map[string]SecretProvider, len(r.providers))}
	for k, v := range r.providers {
		c.providers[k] = v
	}
	return c
}

// Resolve delegates to the provider registered for scheme.
func (r *SecretRegistry) Resolve(ctx context.Context, scheme, reference string) (string, error) {
	p, ok := r.providers[scheme]
	if !ok {
		return "", fmt.Errorf("unknown secret provider scheme %q", scheme)
	}
	return p.Resolve(ctx, reference)
}

// secretRefPattern matches a whole-value reference such as ${file:/run/secrets/redis}.
var secretRefPattern = regexp.MustCompile(`^\$\{([a-z][a-z0-9]*):(.+)\}$`)

// ResolveSecrets replaces every ${scheme:ref} string in cfg, including
// header map values, with the value its provider returns.
func ResolveSecrets(ctx context.Context, cfg *Config, registry *SecretRegistry) error {
	var resolveErr error
	walkStrings(reflect.ValueOf(cfg).Elem(), "", func(val, path string) (string, bool) {
		if resolveErr != nil {
			return "", false
		}
		m := secretRefPattern.FindStringSubmatch(val)
		if m == nil {
			return "", false
		}
		resolved, err := registry.Resolve(ctx, m[1], m[2])
		if err != nil {
			resolveErr = fmt.Errorf("secret resolution failed for %s (${%s:%s}): %w", path, m[1], m[2], err)
			return "", false
		}
		return resolved, true
	})
	return resolveErr
}

// walkStrings visits every string field and string map value under v.
// fn returns the replacement and whether to apply it.
func walkStrings(v reflect.Value, path string, fn func(val, path string) (string, bool)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := v.Field(i)
		sf := t.Field(i)
		if !f.CanSet() {
			continue
		}
		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		switch f.Kind() {
		case reflect.String:
			if f.String() == "" {
				continue
			}
			if repl, ok := fn(f.String(), fieldPath); ok {
				f.SetString(repl)
			}
		case reflect.Struct:
			walkStrings(f, fieldPath, fn)
		case reflect.Map:
			if f.IsNil() || f.Type().Key().Kind() != reflect.String || f.Type().Elem().Kind() != reflect.String {
				continue
			}
			for _, k := range f.MapKeys() {
				if repl, ok := fn(f.MapIndex(k).String(), fieldPath+"["+k.String()+"]"); ok {
					f.SetMapIndex(k, reflect.ValueOf(repl).Convert(f.Type().Elem()))
				}
			}
		}
	}
}
