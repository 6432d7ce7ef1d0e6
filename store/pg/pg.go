// Package pg implements an object store in a table of a PostgreSQL database.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"
	"fmt"
	"regexp"

	"github.com/bobg/sqlutil"
	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
)

var _ vsdb.Store = &Store{}

// Store is a Postgresql-based object store.
type Store struct {
	db    *sql.DB
	table string
}

// Schema is the SQL that New executes, with %s replaced by the table name.
const Schema = `
CREATE TABLE IF NOT EXISTS %s (
  ref BYTEA PRIMARY KEY NOT NULL,
  data BYTEA NOT NULL
);
`

var tableRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// New produces a new Store using `table` in `db` for storage.
// It creates the table if it does not already exist.
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
	q := fmt.Sprintf(`SELECT data FROM %s WHERE ref = $1`, s.table)

	var result []byte
	err := s.db.QueryRowContext(ctx, q, ref[:]).Scan(&result)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, vsdb.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting blob %s", ref)
	}
	return result, nil
}

// Has tells whether the store contains `ref`.
func (s *Store) Has(ctx context.Context, ref vsdb.Ref) (bool, error) {
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE ref = $1)`, s.table)

	var ok bool
	err := s.db.QueryRowContext(ctx, q, ref[:]).Scan(&ok)
	return ok, errors.Wrapf(err, "checking blob %s", ref)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b vsdb.Blob) (vsdb.Ref, bool, error) {
	q := fmt.Sprintf(`INSERT INTO %s (ref, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`, s.table)

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
	q := fmt.Sprintf(`SELECT ref FROM %s WHERE ref > $1 ORDER BY ref`, s.table)
	return sqlutil.ForQueryRows(ctx, s.db, q, start[:], func(ref []byte) error {
		return f(vsdb.RefFromBytes(ref))
	})
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		table := ns
		if prefix, ok := conf["prefix"].(string); ok {
			table = prefix + ns
		}
		return New(ctx, db, table)
	})
}
