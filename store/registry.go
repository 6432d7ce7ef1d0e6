// Package store is a registry of object-store implementations
// and a home for operations that span stores.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/vsdb/vsdb"
)

// Namespaces are the separate address spaces of a repository.
// Each gets its own store, so a blob can never be mistaken for a commit.
const (
	Blobs   = "blobs"
	Commits = "commits"
)

// Factory creates a store for namespace ns from the configuration in conf.
type Factory func(ctx context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error)

var registry = make(map[string]Factory)

// Register makes a store implementation available to Create under the given key.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a store of the registered type key.
func Create(ctx context.Context, key string, conf map[string]interface{}, ns string) (vsdb.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf, ns)
}

// FromConfig creates a store from a config map whose "type" names the implementation.
func FromConfig(ctx context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, errors.New(`missing "type" parameter`)
	}
	return Create(ctx, typ, conf, ns)
}

// Nested creates the store described by conf["nested"],
// for use by stores that wrap another.
func Nested(ctx context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	s, err := FromConfig(ctx, nested, ns)
	return s, errors.Wrap(err, "creating nested store")
}

// IntParam gets an integer parameter from a config map.
// Decoded JSON and YAML represent numbers differently; all are accepted.
func IntParam(conf map[string]interface{}, key string) (int, bool) {
	switch v := conf[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}
