// Package provider contains the streaming-platform clients. Each platform
// exposes the same two operations: resolve a human-entered channel name to a
// stable identity, and ask whether a channel is currently live.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/citrusbot/citrus/internal/models"
)

// ErrChannelNotFound is returned by ResolveChannel when no channel matches
// the query. It is a registration-time miss, not a polling failure.
var ErrChannelNotFound = errors.New("channel not found")

// ChannelIdentity is the stable identity of a channel on its platform.
type ChannelIdentity struct {
	ChannelID   string
	DisplayName string
}

// LiveStatus is the result of one liveness query. The zero value means
// offline; the metadata fields are only meaningful when Live is true.
type LiveStatus struct {
	Live         bool
	StreamID     string
	Title        string
	ChannelName  string
	URL          string
	ThumbnailURL string
	ViewerCount  int
	StartedAt    *time.Time
}

// Provider is implemented once per streaming platform. "Channel exists but
// is offline" is a normal LiveStatus result, never an error; any error from
// QueryLiveStatus is transient (transport, auth, malformed body) and the
// caller skips the channel for the current cycle.
type Provider interface {
	Platform() models.Platform
	ResolveChannel(ctx context.Context, query string) (*ChannelIdentity, error)
	QueryLiveStatus(ctx context.Context, channelID string) (*LiveStatus, error)
}
