// Package feed abstracts the remote message sources a scan iterates
// over. Implementations page or stream message history per source and
// distinguish inaccessible sources from total feed loss.
package feed

import (
	"context"
	"errors"
	"time"

	"jobradar/internal/model"
)

// ErrAccessDenied marks a single source the scanning account cannot
// read. The scanner records it as a warning and continues.
var ErrAccessDenied = errors.New("source access denied")

// ErrUnavailable marks total loss of the message feed, such as lost
// authentication. It fails the whole scan session.
var ErrUnavailable = errors.New("message feed unavailable")

// Source is a resolved scan source.
type Source struct {
	// Raw is the reference the user configured.
	Raw string
	// Name is the display name of the resolved chat/channel.
	Name string

	peer      peerRef
	url       string
	messageID int64
}

// peerRef carries the Telegram-specific resolution of a source.
type peerRef struct {
	channelID  int64
	accessHash int64
	username   string
}

// Feed enumerates messages of sources the scanning account has access to.
type Feed interface {
	// Resolve maps a raw source reference to a resolved Source.
	// Inaccessible sources yield an error wrapping ErrAccessDenied.
	Resolve(ctx context.Context, raw string) (Source, error)

	// Messages streams messages of src no older than cutoff, newest
	// first, invoking fn per message. A zero cutoff means the full
	// history the provider offers. Enumeration stops early when fn
	// returns an error, which is propagated unchanged.
	Messages(ctx context.Context, src Source, cutoff time.Time, fn func(model.Message) error) error
}
