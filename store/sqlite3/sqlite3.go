// Package sqlite3 implements an object store in a table of a SQLite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"
	"fmt"
	"regexp"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
)

var _ vsdb.Store = &Store{}

// Store is a Sqlite-based object store.
// Each Store uses one table, so the blob and commit namespaces of a repository
// can share a database.
type Store struct {
	db    *sql.DB
	table string
}

// Schema is the SQL that New executes, with %s replaced by the table name.
// It creates the table if it does not exist.
// (If it does exist, it must have the columns and constraints described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS %s (
  ref BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);
`

var tableRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// New produces a new Store using `table` in `db` for storage.
func New(ctx context.Context, db *sql.DB, table string) (*Store, error) {
	if !tableRE.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf(Schema, table))
	if err != nil {
		return nil, errors.Wrapf(err, "creating table %s", table)
	}
	return &Store{db: db, table: table}, nil
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref vsdb.Ref) (vsdb.Blob, error) {
	q := fmt.Sprintf(`SELECT data FROM %s WHERE ref = ?`, s.table)

	var b []byte
	err := s.db.QueryRowContext(ctx, q, ref[:]).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, vsdb.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting blob %s", ref)
	}
	return b, nil
}

// Has tells whether the store contains `ref`.
func (s *Store) Has(ctx context.Context, ref vsdb.Ref) (bool, error) {
	q := fmt.Sprintf(`SELECT 1 FROM %s WHERE ref = ?`, s.table)

	var one int
	err := s.db.QueryRowContext(ctx, q, ref[:]).Scan(&one)
	if stderrs.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "checking blob %s", ref)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b vsdb.Blob) (vsdb.Ref, bool, error) {
	q := fmt.Sprintf(`INSERT INTO %s (ref, data) VALUES (?, ?) ON CONFLICT DO NOTHING`, s.table)

	data := []byte(b)
	if data == nil {
		data = []byte{}
	}

	ref := b.Ref()
	res, err := s.db.ExecContext(ctx, q, ref[:], data)
	if err != nil {
		return vsdb.Zero, false, errors.Wrap(err, "inserting blob")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return vsdb.Zero, false, errors.Wrap(err, "counting affected rows")
	}

	return ref, aff > 0, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start vsdb.Ref, f func(vsdb.Ref) error) error {
	q := fmt.Sprintf(`SELECT ref FROM %s WHERE ref > ? ORDER BY ref`, s.table)
	return sqlutil.ForQueryRows(ctx, s.db, q, start[:], func(ref []byte) error {
		return f(vsdb.RefFromBytes(ref))
	})
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db, ns)
	})
}
