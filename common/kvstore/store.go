// Package kvstore is the asynchronous key-value port the crawler persists its
// state through. Values are stored JSON-encoded, one entry per key, grouped in
// scopes.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Scope groups keys the way the extension storage areas did.
type Scope string

const (
	// ScopeLocal holds mutable per-run crawl state.
	ScopeLocal Scope = "local"
	// ScopeConfig holds user-entered settings.
	ScopeConfig Scope = "config"
)

var ErrUnknownScope = errors.New("unknown kv scope")

// Change announces that keys of a scope were written or cleared.
type Change struct {
	Scope   Scope    `json:"scope"`
	Keys    []string `json:"keys,omitempty"`
	Cleared bool     `json:"cleared,omitempty"`
}

type Store interface {
	// Load decodes every stored key of scope into dst, a pointer to a struct
	// whose JSON tags match the key names. Keys that are not stored leave the
	// corresponding field untouched.
	Load(ctx context.Context, scope Scope, dst any) error
	// Set writes all values in one call.
	Set(ctx context.Context, scope Scope, values map[string]any) error
	Clear(ctx context.Context, scope Scope) error
	// Watch streams changes of scope until ctx is done.
	Watch(ctx context.Context, scope Scope) (<-chan Change, error)
}

func validScope(scope Scope) error {
	switch scope {
	case ScopeLocal, ScopeConfig:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownScope, scope)
}

func encodeValues(values map[string]any) (map[string]json.RawMessage, []string, error) {
	out := make(map[string]json.RawMessage, len(values))
	keys := make([]string, 0, len(values))
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		out[k] = b
		keys = append(keys, k)
	}
	return out, keys, nil
}

func decodeInto(raw map[string]json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("assembling stored values: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decoding stored values: %w", err)
	}
	return nil
}
