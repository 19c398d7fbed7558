package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citrusbot/citrus/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// --- channels ---

const channelCols = `platform, channel_id, channel_name, last_stream_id, is_live, last_checked, created_at`

func (p *Postgres) ListChannels(ctx context.Context, platform models.Platform) ([]models.Channel, error) {
	q := `SELECT ` + channelCols + ` FROM channels`
	args := []any{}
	if platform != "" {
		q += ` WHERE platform = $1`
		args = append(args, platform)
	}
	q += ` ORDER BY platform, channel_name`

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.Platform, &c.ChannelID, &c.ChannelName,
			&c.LastStreamID, &c.IsLive, &c.LastChecked, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListChannels scan: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

func (p *Postgres) GetChannel(ctx context.Context, platform models.Platform, channelID string) (*models.Channel, error) {
	var c models.Channel
	err := p.pool.QueryRow(ctx,
		`SELECT `+channelCols+` FROM channels WHERE platform = $1 AND channel_id = $2`,
		platform, channelID,
	).Scan(&c.Platform, &c.ChannelID, &c.ChannelName,
		&c.LastStreamID, &c.IsLive, &c.LastChecked, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannel: %w", err)
	}
	return &c, nil
}

func (p *Postgres) UpsertChannel(ctx context.Context, platform models.Platform, channelID, channelName string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO channels (platform, channel_id, channel_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (platform, channel_id) DO UPDATE SET channel_name = EXCLUDED.channel_name`,
		platform, channelID, channelName,
	)
	if err != nil {
		return fmt.Errorf("UpsertChannel: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteChannel(ctx context.Context, platform models.Platform, channelID string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM channels WHERE platform = $1 AND channel_id = $2`,
		platform, channelID,
	)
	if err != nil {
		return fmt.Errorf("DeleteChannel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateStreamStatus(ctx context.Context, platform models.Platform, channelID string, isLive bool, streamID *string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE channels
		 SET is_live = $3, last_stream_id = $4, last_checked = NOW()
		 WHERE platform = $1 AND channel_id = $2`,
		platform, channelID, isLive, streamID,
	)
	if err != nil {
		return fmt.Errorf("UpdateStreamStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- webhooks ---

func (p *Postgres) ListWebhooks(ctx context.Context) ([]models.Webhook, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, server_name, webhook_url, message_template, created_at
		 FROM webhooks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListWebhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		var w models.Webhook
		if err := rows.Scan(&w.ID, &w.ServerName, &w.WebhookURL, &w.MessageTemplate, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListWebhooks scan: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func (p *Postgres) AddWebhook(ctx context.Context, w *models.Webhook) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO webhooks (server_name, webhook_url, message_template)
		 VALUES ($1, $2, $3) RETURNING id`,
		w.ServerName, w.WebhookURL, w.MessageTemplate,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("AddWebhook: %w", err)
	}
	return id, nil
}

func (p *Postgres) DeleteWebhook(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteWebhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- channel requests ---

const requestCols = `id, token, platform, channel_id, channel_name, requester_name, requester_email, reason, status, created_at, updated_at`

func (p *Postgres) CreateChannelRequest(ctx context.Context, req *models.ChannelRequest) (int64, string, error) {
	// Re-requesting an already-requested channel resets the row to pending
	// but keeps the original token, so earlier status links stay valid.
	var (
		id    int64
		token string
	)
	err := p.pool.QueryRow(ctx,
		`INSERT INTO channel_requests
		   (token, platform, channel_id, channel_name, requester_name, requester_email, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (platform, channel_id) DO UPDATE SET
		   channel_name = EXCLUDED.channel_name,
		   requester_name = EXCLUDED.requester_name,
		   requester_email = EXCLUDED.requester_email,
		   reason = EXCLUDED.reason,
		   status = 'pending',
		   updated_at = NOW()
		 RETURNING id, token`,
		req.Token, req.Platform, req.ChannelID, req.ChannelName,
		req.RequesterName, req.RequesterEmail, req.Reason,
	).Scan(&id, &token)
	if err != nil {
		return 0, "", fmt.Errorf("CreateChannelRequest: %w", err)
	}
	return id, token, nil
}

func (p *Postgres) ListChannelRequests(ctx context.Context, status string) ([]models.ChannelRequest, error) {
	q := `SELECT ` + requestCols + ` FROM channel_requests`
	args := []any{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListChannelRequests: %w", err)
	}
	defer rows.Close()

	var requests []models.ChannelRequest
	for rows.Next() {
		var r models.ChannelRequest
		if err := rows.Scan(&r.ID, &r.Token, &r.Platform, &r.ChannelID, &r.ChannelName,
			&r.RequesterName, &r.RequesterEmail, &r.Reason, &r.Status,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListChannelRequests scan: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (p *Postgres) GetChannelRequest(ctx context.Context, id int64) (*models.ChannelRequest, error) {
	var r models.ChannelRequest
	err := p.pool.QueryRow(ctx,
		`SELECT `+requestCols+` FROM channel_requests WHERE id = $1`, id,
	).Scan(&r.ID, &r.Token, &r.Platform, &r.ChannelID, &r.ChannelName,
		&r.RequesterName, &r.RequesterEmail, &r.Reason, &r.Status,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelRequest: %w", err)
	}
	return &r, nil
}

func (p *Postgres) UpdateChannelRequestStatus(ctx context.Context, id int64, status string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE channel_requests SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("UpdateChannelRequestStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
