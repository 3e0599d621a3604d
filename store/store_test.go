package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/store"
	"github.com/redis/go-redis/v9"
)

func exerciseStore(t *testing.T, s iam.SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on empty store error: %v", err)
	}
	if snap != nil {
		t.Fatalf("Load() on empty store = %+v, want nil", snap)
	}

	want := iam.NewActivitySnapshot("uid-1", "alice@example.com", time.UnixMilli(1700000000000))
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}

	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after Delete error: %v", err)
	}
	if got != nil {
		t.Errorf("Load() after Delete = %+v, want nil", got)
	}

	// Deleting twice is not an error.
	if err := s.Delete(ctx); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, store.NewMemory())
}

func TestFile(t *testing.T) {
	exerciseStore(t, store.NewFile(filepath.Join(t.TempDir(), "state", "session.json")))
}

func TestFile_UsesLocalStorageKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := store.NewFile(path)
	if err := s.Save(context.Background(), iam.NewActivitySnapshot("uid-2", "b@example.com", time.UnixMilli(42))); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	want := `{"firebase_user":{"uid":"uid-2","email":"b@example.com","lastActivityTime":42}}`
	if string(data) != want {
		t.Errorf("file = %s, want %s", data, want)
	}
}

func TestFile_CorruptFileIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := store.NewFile(path)
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("Load() expected error for corrupt file")
	}
	if err := s.Delete(context.Background()); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt file should be removed by Delete()")
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedis(client, store.WithKeyPrefix("test"))
	defer s.Close()

	exerciseStore(t, s)
}

func TestRedis_TTLAndKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedis(client, store.WithKeyPrefix("device-1"), store.WithTTL(time.Hour))
	defer s.Close()

	if err := s.Save(context.Background(), iam.NewActivitySnapshot("uid-3", "c@example.com", time.UnixMilli(7))); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !mr.Exists("device-1:firebase_user") {
		t.Fatal("expected key device-1:firebase_user")
	}
	if ttl := mr.TTL("device-1:firebase_user"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if snap != nil {
		t.Error("snapshot should have expired")
	}
}
