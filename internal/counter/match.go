package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned for a malformed glob.
var ErrInvalidPattern = errors.New("invalid path pattern")

// ListMatching returns up to limit records whose path matches the glob
// pattern, highest count first. "**" spans path segments, so "/api/**"
// selects every key under /api. An empty pattern behaves like List.
func ListMatching(ctx context.Context, s Store, pattern string, limit int) ([]Record, error) {
	if pattern == "" {
		return s.List(ctx, limit)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(all))
	for _, r := range all {
		if ok, _ := doublestar.Match(pattern, r.Path); ok {
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
