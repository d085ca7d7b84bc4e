package pebblestore

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/rzbill/strata/pkg/log"
)

func newTestDB(t *testing.T) (*DB, *Stats) {
	t.Helper()
	stats := &Stats{}
	db, err := Open(Options{
		DataDir:       t.TempDir(),
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       stats,
		Logger:        logpkg.NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, stats
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatalf("expected error without DataDir")
	}
}

func TestSetGetDelete(t *testing.T) {
	db, stats := newTestDB(t)

	if err := db.Set([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get([]byte("k1"))
	if err != nil || string(got) != "v1" {
		t.Fatalf("get: %q, %v", got, err)
	}
	if s := stats.Snapshot(); s.Writes != 1 || s.ReadBytes != 2 || s.Commits == 0 {
		t.Fatalf("unexpected stats: %+v", s)
	}

	if err := db.Delete([]byte("k1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k1")); !IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestDeleteRange(t *testing.T) {
	db, _ := newTestDB(t)
	for i := 0; i < 5; i++ {
		if err := db.Set([]byte(fmt.Sprintf("s/%d", i)), []byte("x")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := db.Set([]byte("t/0"), []byte("y")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.DeleteRange([]byte("s/"), []byte("s0")); err != nil {
		t.Fatalf("delete range: %v", err)
	}

	it, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	defer it.Close()
	var keys [][]byte
	for ok := it.First(); ok; ok = it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	if len(keys) != 1 || !bytes.Equal(keys[0], []byte("t/0")) {
		t.Fatalf("unexpected keys after range delete: %q", keys)
	}
}

func TestBatchCommit(t *testing.T) {
	db, stats := newTestDB(t)

	b := db.NewBatch()
	_ = b.Set([]byte("a"), []byte("1"), nil)
	_ = b.Set([]byte("b"), []byte("2"), nil)
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	s := stats.Snapshot()
	if s.Commits != 1 || s.CommitOps != 2 || s.CommitBytes <= 0 {
		t.Fatalf("unexpected commit stats: %+v", s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b2 := db.NewBatch()
	defer b2.Close()
	if err := db.CommitBatch(ctx, b2); err == nil {
		t.Fatalf("expected canceled context to abort commit")
	}
	if err := db.CommitBatch(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil batch")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	db, _ := newTestDB(t)

	if err := db.Set([]byte("k2"), []byte("old")); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap := db.NewSnapshot()
	defer snap.Close()
	if err := db.Set([]byte("k2"), []byte("new")); err != nil {
		t.Fatalf("set: %v", err)
	}

	old, closer, err := snap.Get([]byte("k2"))
	if err != nil || string(old) != "old" {
		t.Fatalf("snapshot saw %q, %v", old, err)
	}
	closer.Close()
	if cur, _ := db.Get([]byte("k2")); string(cur) != "new" {
		t.Fatalf("db saw %q", cur)
	}
}

func TestParseFsyncMode(t *testing.T) {
	tests := []struct {
		in      string
		want    FsyncMode
		wantErr bool
	}{
		{"always", FsyncModeAlways, false},
		{"interval", FsyncModeInterval, false},
		{"", FsyncModeInterval, false},
		{"never", FsyncModeNever, false},
		{"sometimes", FsyncModeUnspecified, true},
	}
	for _, tt := range tests {
		got, err := ParseFsyncMode(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Fatalf("ParseFsyncMode(%q) = %v, %v", tt.in, got, err)
		}
		if err == nil && tt.in != "" && got.String() != tt.in {
			t.Fatalf("String() = %q want %q", got.String(), tt.in)
		}
	}
}
