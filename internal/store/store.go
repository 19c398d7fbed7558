package store

import (
	"context"
	"errors"

	"github.com/citrusbot/citrus/internal/models"
)

// ErrNotFound is returned when a keyed lookup or update matches no row.
var ErrNotFound = errors.New("not found")

// Store defines persistence for tracked channels, Discord webhooks, and
// viewer channel requests.
type Store interface {
	// ListChannels returns tracked channels. platform narrows the snapshot
	// to one platform; the empty platform returns everything.
	ListChannels(ctx context.Context, platform models.Platform) ([]models.Channel, error)
	// GetChannel returns a single tracked channel.
	GetChannel(ctx context.Context, platform models.Platform, channelID string) (*models.Channel, error)
	// UpsertChannel registers a channel, refreshing the display name when it
	// already exists. Liveness state of an existing row is left untouched.
	UpsertChannel(ctx context.Context, platform models.Platform, channelID, channelName string) error
	// DeleteChannel removes a tracked channel.
	DeleteChannel(ctx context.Context, platform models.Platform, channelID string) error
	// UpdateStreamStatus records the result of one liveness check. It always
	// stamps last_checked; streamID nil clears the remembered stream id.
	// Idempotent: repeating the same arguments leaves the row identical
	// apart from last_checked.
	UpdateStreamStatus(ctx context.Context, platform models.Platform, channelID string, isLive bool, streamID *string) error

	// ListWebhooks returns every registered Discord webhook.
	ListWebhooks(ctx context.Context) ([]models.Webhook, error)
	// AddWebhook registers a webhook and returns its id.
	AddWebhook(ctx context.Context, w *models.Webhook) (int64, error)
	// DeleteWebhook removes a webhook.
	DeleteWebhook(ctx context.Context, id int64) error

	// CreateChannelRequest files a viewer request. Re-requesting the same
	// channel resets the existing row to pending and keeps its token.
	CreateChannelRequest(ctx context.Context, req *models.ChannelRequest) (id int64, token string, err error)
	// ListChannelRequests returns requests, optionally filtered by status.
	ListChannelRequests(ctx context.Context, status string) ([]models.ChannelRequest, error)
	// GetChannelRequest returns a single request by id.
	GetChannelRequest(ctx context.Context, id int64) (*models.ChannelRequest, error)
	// UpdateChannelRequestStatus moves a request to approved or rejected.
	UpdateChannelRequestStatus(ctx context.Context, id int64, status string) error
}
