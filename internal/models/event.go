package models

import "time"

// LiveEvent is built once per detected offline-to-live transition and handed
// to the dispatcher. It is never persisted and never mutated after creation.
type LiveEvent struct {
	Platform     Platform
	ChannelName  string
	StreamID     string
	Title        string
	URL          string
	ThumbnailURL string
	ViewerCount  int        // 0 when the platform did not report one
	StartedAt    *time.Time // nil when the platform did not report one
}
