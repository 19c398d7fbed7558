package models

import "time"

// Webhook is a registered Discord webhook that receives live notifications.
// MessageTemplate is optional; when nil the default embed rendering is used.
type Webhook struct {
	ID              int64     `json:"id,omitempty"`
	ServerName      string    `json:"server_name"`
	WebhookURL      string    `json:"webhook_url"`
	MessageTemplate *string   `json:"message_template,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}
