// Package storage defines the ban registry persistence interface and its
// implementations.
package storage

import "context"

// Storage is the durable ban registry keyed by message link. Toggles are
// idempotent and writes are serialized, so the registry is safe to mutate
// while a scan is reading it.
type Storage interface {
	SetBanned(ctx context.Context, link string, banned bool) error
	IsBanned(ctx context.Context, link string) (bool, error)
	ListBanned(ctx context.Context) ([]string, error)

	Close() error
}
