package models

import "time"

// Channel is one tracked streaming channel and its last-known liveness.
// (platform, channel_id) is the primary key.
type Channel struct {
	Platform     Platform  `json:"platform"`
	ChannelID    string    `json:"channel_id"`
	ChannelName  string    `json:"channel_name"`
	LastStreamID *string   `json:"last_stream_id,omitempty"`
	IsLive       bool      `json:"is_live"`
	LastChecked  time.Time `json:"last_checked"`
	CreatedAt    time.Time `json:"created_at"`
}
