package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("kv down")
}
func (brokenKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("kv down")
}
func (brokenKV) Del(context.Context, ...string) error {
	return errors.New("kv down")
}

type aggregate struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

func TestReadThroughCachesFetchResult(t *testing.T) {
	c := NewCoordinator(NewMemoryKV(16, time.Hour))
	key := WorkspaceKey(uuid.New())
	calls := 0
	fetch := func(context.Context) (aggregate, error) {
		calls++
		return aggregate{Name: "platform", Members: 3}, nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := ReadThrough(ctx, c, key, fetch)
		if err != nil {
			t.Fatalf("ReadThrough: %v", err)
		}
		if got.Name != "platform" || got.Members != 3 {
			t.Fatalf("unexpected value: %+v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single source fetch, got %d", calls)
	}
}

func TestReadThroughPropagatesFetchError(t *testing.T) {
	c := NewCoordinator(NewMemoryKV(16, time.Hour))
	wantErr := errors.New("source down")
	_, err := ReadThrough(context.Background(), c, ProjectKey(uuid.New()), func(context.Context) (aggregate, error) {
		return aggregate{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestBrokenBackendDegradesToFetch(t *testing.T) {
	c := NewCoordinator(brokenKV{})
	calls := 0
	fetch := func(context.Context) (aggregate, error) {
		calls++
		return aggregate{Name: "ops"}, nil
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		got, err := ReadThrough(ctx, c, WorkspaceKey(uuid.New()), fetch)
		if err != nil {
			t.Fatalf("ReadThrough: %v", err)
		}
		if got.Name != "ops" {
			t.Fatalf("unexpected value: %+v", got)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every read to hit the source, got %d fetches", calls)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := NewCoordinator(NewMemoryKV(16, time.Hour))
	key := WorkspaceKey(uuid.New())
	calls := 0
	fetch := func(context.Context) (aggregate, error) {
		calls++
		return aggregate{Members: calls}, nil
	}

	ctx := context.Background()
	if _, err := ReadThrough(ctx, c, key, fetch); err != nil {
		t.Fatalf("ReadThrough: %v", err)
	}
	c.Invalidate(ctx, key)
	got, err := ReadThrough(ctx, c, key, fetch)
	if err != nil {
		t.Fatalf("ReadThrough: %v", err)
	}
	if calls != 2 || got.Members != 2 {
		t.Fatalf("expected refetch after invalidate, calls=%d value=%+v", calls, got)
	}
}

func TestWriteThroughUpdatesReaders(t *testing.T) {
	c := NewCoordinator(NewMemoryKV(16, time.Hour))
	key := ProjectKey(uuid.New())

	WriteThrough(context.Background(), c, key, aggregate{Name: "billing", Members: 5})
	got, err := ReadThrough(context.Background(), c, key, func(context.Context) (aggregate, error) {
		t.Fatal("source must not be consulted after a write-through")
		return aggregate{}, nil
	})
	if err != nil {
		t.Fatalf("ReadThrough: %v", err)
	}
	if got.Members != 5 {
		t.Fatalf("unexpected value: %+v", got)
	}
}

func TestReadThroughMarkedConsultsSourceMarker(t *testing.T) {
	c := NewCoordinator(NewMemoryKV(16, time.Hour))
	key := WorkspaceKey(uuid.New())
	source := "2026-02-01T10:00:00Z"
	calls := 0
	markerFetch := func(context.Context) (string, error) { return source, nil }
	fetch := func(context.Context) (aggregate, string, error) {
		calls++
		return aggregate{Members: calls}, source, nil
	}

	ctx := context.Background()
	// An absent session marker distrusts the cache and warms it.
	if _, mk, err := ReadThroughMarked(ctx, c, key, "", markerFetch, fetch); err != nil || mk != source {
		t.Fatalf("ReadThroughMarked: marker=%q err=%v", mk, err)
	}
	if calls != 1 {
		t.Fatalf("expected one source fetch, got %d", calls)
	}

	// A session holding the source's current marker gets the cached entry.
	got, mk, err := ReadThroughMarked(ctx, c, key, source, markerFetch, fetch)
	if err != nil {
		t.Fatalf("ReadThroughMarked: %v", err)
	}
	if calls != 1 || got.Members != 1 || mk != source {
		t.Fatalf("expected cache hit, calls=%d value=%+v marker=%s", calls, got, mk)
	}

	// The source moving on invalidates the entry even for a session that
	// matched the old marker: its marker no longer equals the current one.
	stale := source
	source = "2026-02-01T11:00:00Z"
	got, mk, err = ReadThroughMarked(ctx, c, key, stale, markerFetch, fetch)
	if err != nil {
		t.Fatalf("ReadThroughMarked: %v", err)
	}
	if calls != 2 || got.Members != 2 || mk != source {
		t.Fatalf("expected refetch, calls=%d value=%+v marker=%s", calls, got, mk)
	}

	// An absent session marker keeps distrusting the cache.
	if _, _, err := ReadThroughMarked(ctx, c, key, "", markerFetch, fetch); err != nil {
		t.Fatalf("ReadThroughMarked: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected refetch for markerless session, got %d fetches", calls)
	}
}

func TestReadThroughMarkedSupersededEntryNotServed(t *testing.T) {
	c := NewCoordinator(NewMemoryKV(16, time.Hour))
	key := WorkspaceKey(uuid.New())
	source := "2026-02-01T10:00:00Z"
	value := aggregate{Name: "platform"}
	markerFetch := func(context.Context) (string, error) { return source, nil }
	fetch := func(context.Context) (aggregate, string, error) { return value, source, nil }

	ctx := context.Background()
	if _, _, err := ReadThroughMarked(ctx, c, key, "", markerFetch, fetch); err != nil {
		t.Fatalf("ReadThroughMarked: %v", err)
	}

	// The store of record advances but the cache write-through is lost.
	source = "2026-02-01T10:30:00Z"
	value = aggregate{Name: "renamed"}

	got, _, err := ReadThroughMarked(ctx, c, key, "", markerFetch, fetch)
	if err != nil {
		t.Fatalf("ReadThroughMarked: %v", err)
	}
	if got.Name != "renamed" {
		t.Fatalf("superseded entry served: %+v", got)
	}
}

func TestReadThroughMarkedPropagatesMarkerError(t *testing.T) {
	c := NewCoordinator(NewMemoryKV(16, time.Hour))
	wantErr := errors.New("row gone")
	_, _, err := ReadThroughMarked(context.Background(), c, WorkspaceKey(uuid.New()), "",
		func(context.Context) (string, error) { return "", wantErr },
		func(context.Context) (aggregate, string, error) {
			t.Fatal("fetch must not run when the marker read fails")
			return aggregate{}, "", nil
		})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected marker error, got %v", err)
	}
}

func TestMemoryKVHonorsEntryTTL(t *testing.T) {
	kv := NewMemoryKV(16, time.Hour)
	base := time.Now()
	kv.now = func() time.Time { return base }

	ctx := context.Background()
	if err := kv.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "k"); !ok {
		t.Fatal("expected entry before expiry")
	}
	kv.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Fatal("expected entry to expire")
	}
}
