package models

import "time"

// ChannelRequest is a viewer-submitted request to track a channel. Requests
// sit in "pending" until an admin approves (which registers the channel) or
// rejects them. Token is the public handle returned to the requester.
type ChannelRequest struct {
	ID             int64     `json:"id,omitempty"`
	Token          string    `json:"token,omitempty"`
	Platform       Platform  `json:"platform"`
	ChannelID      string    `json:"channel_id"`
	ChannelName    string    `json:"channel_name"`
	RequesterName  string    `json:"requester_name"`
	RequesterEmail string    `json:"requester_email"`
	Reason         string    `json:"reason,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}
