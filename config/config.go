// Package config reads and writes the repository configuration file.
//
// The file is JSON or YAML.
// Its "objects" member is a store configuration map,
// as understood by store.FromConfig,
// for example:
//
//	{"format": "vsdb", "objects": {"type": "file", "root": "objects"}}
//
// or
//
//	format: vsdb
//	objects:
//	  type: lru
//	  size: 1000
//	  nested:
//	    type: sqlite3
//	    conn: objects.db
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vsdb/vsdb"
)

// FileName is the name of the configuration file in a repository root.
// Its presence marks the directory as an initialized repository.
const FileName = ".vsdb"

// Format is the value of Config.Format for files written by this package.
const Format = "vsdb"

// Config is the contents of a repository configuration file.
type Config struct {
	Format      string                 `json:"format" yaml:"format"`
	Initialized string                 `json:"initialized,omitempty" yaml:"initialized,omitempty"`
	Objects     map[string]interface{} `json:"objects,omitempty" yaml:"objects,omitempty"`
}

// Default is the configuration of a repository with no configuration file:
// a file store in the objects subdirectory.
func Default() *Config {
	return &Config{
		Format:  Format,
		Objects: map[string]interface{}{"type": "file", "root": "objects"},
	}
}

// New produces a default configuration stamped with the given initialization time.
func New(now time.Time) *Config {
	c := Default()
	c.Initialized = now.Format(vsdb.TimeLayout)
	return c
}

// Load reads the configuration file at path.
// Files named *.yaml or *.yml, and files that do not begin with '{', are parsed as YAML.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, vsdb.NewIOError("reading config", path, err)
	}
	c, err := Parse(b, isYAML(path, b))
	return c, errors.Wrapf(err, "parsing config file %s", path)
}

// LoadDir reads the configuration file in the repository rooted at dir.
// If there is none, it returns Default() and false.
func LoadDir(dir string) (*Config, bool, error) {
	path := filepath.Join(dir, FileName)
	c, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Parse parses configuration data as YAML (if asYAML) or JSON.
func Parse(b []byte, asYAML bool) (*Config, error) {
	var c Config
	if asYAML {
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, errors.Wrap(err, "decoding YAML")
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&c); err != nil {
			return nil, errors.Wrap(err, "decoding JSON")
		}
	}
	if c.Format != "" && c.Format != Format {
		return nil, errors.Errorf("unknown format %q", c.Format)
	}
	if c.Objects == nil {
		c.Objects = Default().Objects
	}
	return &c, nil
}

func isYAML(path string, b []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	case ".json":
		return false
	}
	return !bytes.HasPrefix(bytes.TrimSpace(b), []byte("{"))
}

// Write writes c as JSON to path, atomically.
func (c *Config) Write(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	b = append(b, '\n')
	return vsdb.NewIOError("writing config", path, renameio.WriteFile(path, b, 0644))
}

// ObjectsConfig is c.Objects with relative paths resolved against dir.
// The "root" parameter of every (possibly nested) store configuration is resolved,
// and so is the "conn" parameter of sqlite3 stores when it is a plain file name.
func (c *Config) ObjectsConfig(dir string) map[string]interface{} {
	return resolve(c.Objects, dir)
}

func resolve(conf map[string]interface{}, dir string) map[string]interface{} {
	out := make(map[string]interface{}, len(conf))
	for k, v := range conf {
		switch vv := v.(type) {
		case map[string]interface{}:
			out[k] = resolve(vv, dir)
		default:
			out[k] = v
		}
	}
	if root, ok := out["root"].(string); ok && !filepath.IsAbs(root) {
		out["root"] = filepath.Join(dir, root)
	}
	if out["type"] == "sqlite3" {
		if conn, ok := out["conn"].(string); ok && isPlainPath(conn) {
			out["conn"] = filepath.Join(dir, conn)
		}
	}
	return out
}

func isPlainPath(conn string) bool {
	return conn != "" && !filepath.IsAbs(conn) && !strings.HasPrefix(conn, "file:") && !strings.HasPrefix(conn, ":memory:")
}
