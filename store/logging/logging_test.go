package logging

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vsdb/vsdb"
	"github.com/vsdb/vsdb/store/mem"
	"github.com/vsdb/vsdb/testutil"
)

func TestStore(t *testing.T) {
	logger, _ := test.NewNullLogger()
	testutil.ReadWrite(context.Background(), t, func() vsdb.Store { return New(mem.New(), logger) })
}

func TestLogs(t *testing.T) {
	var (
		ctx          = context.Background()
		logger, hook = test.NewNullLogger()
		s            = New(mem.New(), logger)
	)

	ref, _, err := s.Put(ctx, vsdb.Blob("hello"))
	if err != nil {
		t.Fatal(err)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Message != "Put" || entry.Data["added"] != true {
		t.Fatalf("unexpected log entry %+v", entry)
	}

	_, err = s.Get(ctx, vsdb.Blob("missing").Ref())
	if err == nil {
		t.Fatal("expected error")
	}
	entry = hook.LastEntry()
	if entry.Level != logrus.ErrorLevel {
		t.Errorf("got level %s, want error", entry.Level)
	}

	if _, err = s.Get(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if n := len(hook.AllEntries()); n != 3 {
		t.Errorf("got %d log entries, want 3", n)
	}
}
