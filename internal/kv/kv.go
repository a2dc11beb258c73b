// Package kv defines the local durable key-value capability backing cart
// persistence. The cart writes its whole snapshot as one blob under one
// fixed key, so the port stays deliberately minimal.
package kv

import "github.com/go-faster/errors"

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Store is a durable key-value store. Implementations must make Put
// atomic with respect to concurrent Gets of the same key.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}
