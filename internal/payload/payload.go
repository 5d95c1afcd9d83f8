// Package payload holds the opaque request and response documents that flow
// through the counting proxy. Only the counting key is ever read from a
// request; everything else is passed through byte for byte.
package payload

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// KeyField is the request field that names the counter.
const KeyField = "path"

// Request is an inbound invocation event.
type Request []byte

// Response is a downstream handler's reply.
type Response []byte

// Reasons a request carries no usable counting key.
var (
	ErrNotJSON      = errors.New("request is not valid JSON")
	ErrNotObject    = errors.New("request is not a JSON object")
	ErrMissingKey   = fmt.Errorf("request has no %q field", KeyField)
	ErrInvalidKey   = fmt.Errorf("request %q field must be a non-empty string", KeyField)
	ErrDuplicateKey = fmt.Errorf("request has more than one %q field", KeyField)
)

// DeriveKey returns the counting key of req. It depends only on the request
// bytes, so retries of one logical request always count against one key.
func DeriveKey(req Request) (string, error) {
	if !gjson.ValidBytes(req) {
		return "", ErrNotJSON
	}
	root := gjson.ParseBytes(req)
	if !root.IsObject() {
		return "", ErrNotObject
	}

	// Decoders disagree on which duplicate wins, so the counted key and
	// the path the downstream serves could differ.
	var field gjson.Result
	n := 0
	root.ForEach(func(key, value gjson.Result) bool {
		if key.Str == KeyField {
			field = value
			n++
		}
		return n < 2
	})
	if n == 0 {
		return "", ErrMissingKey
	}
	if n > 1 {
		return "", ErrDuplicateKey
	}
	if field.Type != gjson.String || field.Str == "" {
		return "", ErrInvalidKey
	}
	return field.Str, nil
}
