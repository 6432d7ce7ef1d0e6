// Command vsdb snapshots a database's data directory into a versioned history.
//
// Usage:
//
//	vsdb [-root DIR] [-config FILE] [-v] SUBCOMMAND [ARGS]
//
// Subcommands are init, commit, log, checkout, head, show, cat, verify, and sync.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"

	"github.com/bobg/subcmd"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vsdb/vsdb/config"
	"github.com/vsdb/vsdb/history"
	"github.com/vsdb/vsdb/store"
	_ "github.com/vsdb/vsdb/store/file"
	_ "github.com/vsdb/vsdb/store/gcs"
	_ "github.com/vsdb/vsdb/store/logging"
	_ "github.com/vsdb/vsdb/store/lru"
	_ "github.com/vsdb/vsdb/store/mem"
	_ "github.com/vsdb/vsdb/store/pg"
	_ "github.com/vsdb/vsdb/store/replica"
	_ "github.com/vsdb/vsdb/store/sqlite3"
)

type maincmd struct {
	root     string
	confPath string
	log      *logrus.Logger
	out      io.Writer
}

func main() {
	var (
		root     = flag.String("root", ".", "repository root")
		confPath = flag.String("config", "", "config file (default: ROOT/.vsdb)")
		verbose  = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logger := logrus.StandardLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	c := maincmd{
		root:     *root,
		confPath: *confPath,
		log:      logger,
		out:      os.Stdout,
	}

	err := subcmd.Run(context.Background(), c, flag.Args())
	if err != nil {
		logger.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"init":     c.initcmd,
		"commit":   c.commit,
		"log":      c.logcmd,
		"checkout": c.checkout,
		"head":     c.head,
		"show":     c.show,
		"cat":      c.cat,
		"verify":   c.verify,
		"sync":     c.sync,
	}
}

func (c maincmd) open(ctx context.Context) (*history.Repo, error) {
	opts := []history.Option{history.WithLogger(c.log)}
	if c.confPath != "" {
		conf, err := config.Load(c.confPath)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", c.confPath)
		}
		objconf := conf.ObjectsConfig(c.root)
		blobs, err := store.FromConfig(ctx, objconf, store.Blobs)
		if err != nil {
			return nil, errors.Wrap(err, "creating blob store")
		}
		commits, err := store.FromConfig(ctx, objconf, store.Commits)
		if err != nil {
			return nil, errors.Wrap(err, "creating commit store")
		}
		opts = append(opts, history.WithStores(blobs, commits))
	}
	return history.Open(ctx, c.root, opts...)
}

func (c maincmd) closeRepo(r *history.Repo) {
	if err := r.Close(); err != nil {
		c.log.WithError(err).Error("closing repository")
	}
}

// dataDir is the directory named by a -dir flag,
// defaulting to the repository's data directory.
func (c maincmd) dataDir(dir string) string {
	if dir == "" {
		return filepath.Join(c.root, history.DataDir)
	}
	return dir
}
