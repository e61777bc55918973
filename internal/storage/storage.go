// Package storage defines the durable key-value store the cart engine
// persists its snapshot into, plus the drivers that back it.
package storage

import (
	"context"
	"strings"
)

// CartKey is the key the cart snapshot lives under.
const CartKey = "cart"

// Store is a string-valued key-value store. Get returns an error wrapping
// apperrors.ErrNotFound when the key is absent.
type Store interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// SnapshotKey returns the cart key scoped to namespace, typically a session
// ID. An empty namespace yields the bare CartKey.
func SnapshotKey(namespace string) string {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return CartKey
	}
	return namespace + ":" + CartKey
}
