// Package gcs implements an object store on Google Cloud Storage.
package gcs

import (
	"context"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
)

var _ vsdb.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of an object store.
// Objects are named <prefix><hex ref>.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

// New produces a new Store keeping its objects in `bucket` under `prefix`.
func New(bucket *storage.BucketHandle, prefix string) *Store {
	return &Store{bucket: bucket, prefix: prefix}
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref vsdb.Ref) (vsdb.Blob, error) {
	name := s.objName(ref)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, vsdb.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", name)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	return b, errors.Wrapf(err, "reading contents of object %s", name)
}

// Has tells whether the store contains `ref`.
func (s *Store) Has(ctx context.Context, ref vsdb.Ref) (bool, error) {
	name := s.objName(ref)
	_, err := s.bucket.Object(name).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "getting object attrs for %s", name)
	}
	return true, nil
}

// Put adds a blob to the store if it wasn't already present.
// The write is conditional on the object not existing,
// so concurrent writers of the same content do not clobber one another.
func (s *Store) Put(ctx context.Context, b vsdb.Blob) (vsdb.Ref, bool, error) {
	var (
		ref  = b.Ref()
		name = s.objName(ref)
		obj  = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w    = obj.NewWriter(ctx)
	)

	_, err := w.Write(b)
	if err != nil {
		w.Close()
		return vsdb.Zero, false, errors.Wrapf(err, "writing object %s", name)
	}

	err = w.Close()
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return ref, false, nil
	}
	if err != nil {
		return vsdb.Zero, false, errors.Wrapf(err, "closing object %s", name)
	}
	return ref, true, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start vsdb.Ref, f func(vsdb.Ref) error) error {
	// Google Cloud Storage iterators have no API for starting in the middle of a bucket.
	// But they can filter by object-name prefix.
	// So we take (the hex encoding of) `start` and repeatedly compute prefixes for the objects we want.
	// If `start` is e67a, for example, the sequence of generated prefixes is:
	//   e67b e67c e67d e67e e67f
	//   e68 e69 e6a e6b e6c e6d e6e e6f
	//   e7 e8 e9 ea eb ec ed ee ef
	//   f
	return eachHexPrefix(start.String(), false, func(prefix string) error {
		return s.listRefs(ctx, prefix, f)
	})
}

func (s *Store) listRefs(ctx context.Context, prefix string, f func(vsdb.Ref) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix + prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over objects")
		}
		ref, err := vsdb.RefFromHex(strings.TrimPrefix(obj.Name, s.prefix))
		if err != nil {
			continue
		}
		err = f(ref)
		if err != nil {
			return err
		}
	}
}

func (s *Store) objName(ref vsdb.Ref) string {
	return s.prefix + ref.String()
}

func eachHexPrefix(prefix string, incl bool, f func(string) error) error {
	prefix = strings.ToLower(prefix)
	for len(prefix) > 0 {
		end := hexval(prefix[len(prefix)-1:][0])
		if !incl {
			end++
		}
		prefix = prefix[:len(prefix)-1]
		for c := end; c < 16; c++ {
			err := f(prefix + string(hexdigit(c)))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func hexval(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b - '0')
	case 'a' <= b && b <= 'f':
		return int(10 + b - 'a')
	case 'A' <= b && b <= 'F':
		return int(10 + b - 'A')
	}
	return 0
}

func hexdigit(n int) byte {
	if n < 10 {
		return byte(n + '0')
	}
	return byte(n - 10 + 'a')
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error) {
		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		prefix, _ := conf["prefix"].(string)
		return New(c.Bucket(bucketName), prefix+ns+"/"), nil
	})
}
