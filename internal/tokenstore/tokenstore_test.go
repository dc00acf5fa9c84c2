package tokenstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Get(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "user-1", []byte(`{"accessToken":"a"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"accessToken":"a"}` {
		t.Fatalf("get = %s", got)
	}

	// upsert overwrites
	if err := s.Put(ctx, "user-1", []byte(`{"accessToken":"b"}`)); err != nil {
		t.Fatalf("put overwrite: %v", err)
	}
	got, _ = s.Get(ctx, "user-1")
	if string(got) != `{"accessToken":"b"}` {
		t.Fatalf("after overwrite = %s", got)
	}

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func setupRedisStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	s, err := NewRedisStore("redis://"+mr.Addr(), "test:")
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, mr := setupRedisStore(t)
	defer mr.Close()
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Get(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "user-1", []byte(`{"accessToken":"a"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"accessToken":"a"}` {
		t.Fatalf("get = %s", got)
	}

	// the record lands under the deterministic namespaced key, with no TTL
	if v, err := mr.Get("test:token:user-1"); err != nil || v != `{"accessToken":"a"}` {
		t.Fatalf("raw key lookup: %q, %v", v, err)
	}
	if mr.TTL("test:token:user-1") != 0 {
		t.Fatalf("token key must not expire")
	}

	// last write wins
	if err := s.Put(ctx, "user-1", []byte(`{"accessToken":"b"}`)); err != nil {
		t.Fatalf("put overwrite: %v", err)
	}
	got, _ = s.Get(ctx, "user-1")
	if string(got) != `{"accessToken":"b"}` {
		t.Fatalf("after overwrite = %s", got)
	}

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr := setupRedisStore(t)
	defer s.Close()
	ctx := context.Background()

	mr.Close()

	if err := s.Put(ctx, "user-1", []byte("x")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("put on dead server: err = %v, want ErrUnavailable", err)
	}
	if _, err := s.Get(ctx, "user-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("get on dead server: err = %v, want ErrUnavailable", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ping on dead server: err = %v, want ErrUnavailable", err)
	}
}

func TestRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url", "test:"); err == nil {
		t.Fatal("expected error for malformed store url")
	}
}
