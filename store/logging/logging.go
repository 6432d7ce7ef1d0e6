// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store"
)

var _ vsdb.Store = &Store{}

// Store logs each call before passing it to the nested store.
type Store struct {
	s   vsdb.Store
	log logrus.FieldLogger
}

// New produces a Store wrapping `s`.
// A nil logger means the logrus standard logger.
func New(s vsdb.Store, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{s: s, log: logger}
}

func (s *Store) Get(ctx context.Context, ref vsdb.Ref) (vsdb.Blob, error) {
	b, err := s.s.Get(ctx, ref)
	l := s.log.WithField("ref", ref)
	if err != nil {
		l.WithError(err).Error("Get")
	} else {
		l.WithField("size", len(b)).Info("Get")
	}
	return b, err
}

func (s *Store) Has(ctx context.Context, ref vsdb.Ref) (bool, error) {
	ok, err := s.s.Has(ctx, ref)
	l := s.log.WithField("ref", ref)
	if err != nil {
		l.WithError(err).Error("Has")
	} else {
		l.WithField("found", ok).Info("Has")
	}
	return ok, err
}

func (s *Store) ListRefs(ctx context.Context, start vsdb.Ref, f func(vsdb.Ref) error) error {
	s.log.WithField("start", start).Info("ListRefs")
	return s.s.ListRefs(ctx, start, func(ref vsdb.Ref) error {
		err := f(ref)
		if err != nil {
			s.log.WithField("ref", ref).WithError(err).Error("in ListRefs")
		} else {
			s.log.WithField("ref", ref).Debug("ListRefs")
		}
		return err
	})
}

func (s *Store) Put(ctx context.Context, b vsdb.Blob) (vsdb.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		s.log.WithError(err).Error("Put")
	} else {
		s.log.WithFields(logrus.Fields{"ref": ref, "added": added, "size": len(b)}).Info("Put")
	}
	return ref, added, err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}, ns string) (vsdb.Store, error) {
		nested, err := store.Nested(ctx, conf, ns)
		if err != nil {
			return nil, err
		}
		return New(nested, logrus.WithField("ns", ns)), nil
	})
}
