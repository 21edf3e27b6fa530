// Package cache keeps authorization-relevant aggregates (workspaces with
// their member lists, projects, invitation tokens) close to the request
// path. The store of record always wins: every cache failure degrades to a
// source fetch, never to an error.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"worklane.org/internal/obs"
)

const (
	// AggregateTTL bounds how stale a cached aggregate view may get.
	AggregateTTL = time.Hour
	// InviteTTL bounds how long an invitation token stays redeemable.
	InviteTTL = 24 * time.Hour
)

// Key is a namespaced cache key carrying its own TTL.
type Key struct {
	prefix string
	id     string
	ttl    time.Duration
}

func (k Key) String() string { return k.prefix + k.id }

// WorkspaceKey addresses a workspace aggregate with members.
func WorkspaceKey(id uuid.UUID) Key {
	return Key{prefix: "workspace:", id: id.String(), ttl: AggregateTTL}
}

// ProjectKey addresses a project aggregate with members.
func ProjectKey(id uuid.UUID) Key {
	return Key{prefix: "project:", id: id.String(), ttl: AggregateTTL}
}

// TeamKey addresses a workspace's member roster on its own.
func TeamKey(workspaceID uuid.UUID) Key {
	return Key{prefix: "team:", id: workspaceID.String(), ttl: AggregateTTL}
}

// InviteTokenKey addresses a pending invitation by its opaque token.
func InviteTokenKey(token string) Key {
	return Key{prefix: "invite_token:", id: token, ttl: InviteTTL}
}

// Coordinator implements the read-through and write-through disciplines over
// a KV backend.
type Coordinator struct {
	kv KV
}

// NewCoordinator wraps a KV backend.
func NewCoordinator(kv KV) *Coordinator {
	return &Coordinator{kv: kv}
}

// ReadThrough returns the cached value for key, falling back to fetch on a
// miss and storing the result. Backend and decode errors count as misses.
func ReadThrough[T any](ctx context.Context, c *Coordinator, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok, err := c.kv.Get(ctx, key.String()); err == nil && ok {
		var cached T
		if uerr := json.Unmarshal([]byte(raw), &cached); uerr == nil {
			obs.CacheHit(key.prefix)
			return cached, nil
		}
	}
	obs.CacheMiss(key.prefix)
	value, err := fetch(ctx)
	if err != nil {
		return zero, err
	}
	store(ctx, c, key, value)
	return value, nil
}

// WriteThrough stores a fresh value under key. Best effort: a backend
// failure leaves the old entry to expire on its TTL.
func WriteThrough[T any](ctx context.Context, c *Coordinator, key Key, value T) {
	store(ctx, c, key, value)
}

// Invalidate drops entries. Best effort for the same reason.
func (c *Coordinator) Invalidate(ctx context.Context, keys ...Key) {
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
	}
	if err := c.kv.Del(ctx, raw...); err != nil {
		obs.Logger().Printf("cache: invalidate failed: %v", err)
	}
}

type markedEnvelope[T any] struct {
	Marker string `json:"marker"`
	Value  T      `json:"value"`
}

// ReadThroughMarked is ReadThrough guarded by an update marker. markerFetch
// returns the current marker from the store of record; the cache is only
// trusted when the session-held marker matches it and the cached entry
// carries the same marker. An absent or mismatched session marker falls
// through to the full source fetch, so a session that has not yet seen a
// write can never be served an entry the source has superseded. Markers are
// RFC 3339 UTC timestamps and compare correctly as strings.
func ReadThroughMarked[T any](ctx context.Context, c *Coordinator, key Key, sessionMarker string, markerFetch func(context.Context) (string, error), fetch func(context.Context) (T, string, error)) (T, string, error) {
	var zero T
	current, err := markerFetch(ctx)
	if err != nil {
		return zero, "", err
	}
	if sessionMarker == current {
		if raw, ok, gerr := c.kv.Get(ctx, key.String()); gerr == nil && ok {
			var env markedEnvelope[T]
			if uerr := json.Unmarshal([]byte(raw), &env); uerr == nil && env.Marker == current {
				obs.CacheHit(key.prefix)
				return env.Value, current, nil
			}
		}
	}
	obs.CacheMiss(key.prefix)
	value, marker, err := fetch(ctx)
	if err != nil {
		return zero, "", err
	}
	store(ctx, c, key, markedEnvelope[T]{Marker: marker, Value: value})
	return value, marker, nil
}

// WriteThroughMarked stores a fresh value wrapped with its marker so
// subsequent marked reads can judge staleness.
func WriteThroughMarked[T any](ctx context.Context, c *Coordinator, key Key, marker string, value T) {
	store(ctx, c, key, markedEnvelope[T]{Marker: marker, Value: value})
}

func store[T any](ctx context.Context, c *Coordinator, key Key, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		obs.Logger().Printf("cache: marshal %s: %v", key.prefix, err)
		return
	}
	if err := c.kv.Set(ctx, key.String(), string(data), key.ttl); err != nil {
		obs.Logger().Printf("cache: set %s: %v", key.prefix, err)
	}
}
