// Package service drives the polling cycle: list tracked channels, query
// liveness per platform, classify transitions, persist state, and fan
// notifications out to the registered webhooks.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/citrusbot/citrus/internal/cache"
	"github.com/citrusbot/citrus/internal/models"
	"github.com/citrusbot/citrus/internal/notify"
	"github.com/citrusbot/citrus/internal/provider"
	"github.com/citrusbot/citrus/internal/store"
)

// lockTTL caps how long a crashed cycle can hold the Redis lock.
const lockTTL = 10 * time.Minute

// Broadcaster delivers one live event to a set of webhooks.
// *notify.Sender is the production implementation.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev models.LiveEvent, webhooks []models.Webhook) []notify.DeliveryResult
}

// Report aggregates the outcome of one polling cycle.
type Report struct {
	Checked        int           `json:"checked"`
	WentLive       int           `json:"went_live"`
	WentOffline    int           `json:"went_offline"`
	Skipped        int           `json:"skipped"`
	Delivered      int           `json:"delivered"`
	DeliveryFailed int           `json:"delivery_failed"`
	StoreErrors    int           `json:"store_errors"`
	Elapsed        time.Duration `json:"elapsed"`
}

func (r *Report) merge(other Report) {
	r.Checked += other.Checked
	r.WentLive += other.WentLive
	r.WentOffline += other.WentOffline
	r.Skipped += other.Skipped
	r.Delivered += other.Delivered
	r.DeliveryFailed += other.DeliveryFailed
	r.StoreErrors += other.StoreErrors
}

// Checker runs polling cycles. It holds no state between runs; everything it
// needs to classify a transition lives in the store.
type Checker struct {
	store     store.Store
	providers []provider.Provider
	sender    Broadcaster
	delay     time.Duration // inter-call throttle, per platform
	logger    zerolog.Logger
}

// NewChecker creates a Checker.
func NewChecker(s store.Store, providers []provider.Provider, sender Broadcaster, delay time.Duration, logger zerolog.Logger) *Checker {
	return &Checker{
		store:     s,
		providers: providers,
		sender:    sender,
		delay:     delay,
		logger:    logger,
	}
}

// Run executes one full cycle over all platforms. The webhook set is
// snapshotted once and reused for every event raised in the cycle; with no
// webhooks registered there is nobody to notify, so the cycle returns early.
// Platforms are polled concurrently since they share no channel state.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	webhooks, err := c.store.ListWebhooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	if len(webhooks) == 0 {
		c.logger.Info().Msg("no webhooks registered, skipping cycle")
		return &Report{Elapsed: time.Since(start)}, nil
	}

	var (
		total Report
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	for _, p := range c.providers {
		wg.Add(1)
		go func(p provider.Provider) {
			defer wg.Done()
			rep := c.checkPlatform(ctx, p, webhooks)
			mu.Lock()
			total.merge(rep)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	total.Elapsed = time.Since(start)
	c.logger.Info().
		Int("checked", total.Checked).
		Int("went_live", total.WentLive).
		Int("went_offline", total.WentOffline).
		Int("skipped", total.Skipped).
		Int("delivered", total.Delivered).
		Int("delivery_failed", total.DeliveryFailed).
		Int("store_errors", total.StoreErrors).
		Dur("elapsed", total.Elapsed).
		Msg("cycle complete")
	return &total, nil
}

// RunExclusive runs one cycle under a Redis lock so overlapping scheduler
// invocations cannot double-poll. With no Redis configured it runs unlocked.
func (c *Checker) RunExclusive(ctx context.Context, rds *cache.Redis) (*Report, error) {
	if rds == nil {
		return c.Run(ctx)
	}
	unlock, err := cache.TryLock(ctx, rds, cache.CheckLockKey, lockTTL)
	if err != nil {
		if err == cache.ErrLocked {
			c.logger.Warn().Msg("previous cycle still running, skipping")
			return nil, cache.ErrLocked
		}
		return nil, err
	}
	defer unlock()
	return c.Run(ctx)
}

// checkPlatform walks one platform's tracked channels. A store listing
// failure abandons only this platform; the other platform still makes
// progress.
func (c *Checker) checkPlatform(ctx context.Context, p provider.Provider, webhooks []models.Webhook) Report {
	platform := p.Platform()
	logger := c.logger.With().Str("platform", string(platform)).Logger()

	var rep Report
	channels, err := c.store.ListChannels(ctx, platform)
	if err != nil {
		logger.Error().Err(err).Msg("list channels failed, abandoning platform")
		rep.StoreErrors++
		return rep
	}
	if len(channels) == 0 {
		logger.Debug().Msg("no tracked channels")
		return rep
	}
	logger.Info().Int("channels", len(channels)).Msg("checking channels")

	for i, ch := range channels {
		if i > 0 && c.delay > 0 {
			select {
			case <-ctx.Done():
				return rep
			case <-time.After(c.delay):
			}
		}
		if ctx.Err() != nil {
			return rep
		}
		rep.merge(c.checkChannel(ctx, p, ch, webhooks, logger))
	}
	return rep
}

// checkChannel classifies one channel's transition and applies it:
//
//	offline -> offline  stamp last_checked only
//	offline -> live     persist live state, then notify every webhook
//	live    -> live     stamp last_checked, refresh stream id if it changed
//	live    -> offline  persist offline state, clear stream id, no event
//
// A provider failure skips the channel entirely: no state mutation, so the
// transition is re-evaluated next cycle.
func (c *Checker) checkChannel(ctx context.Context, p provider.Provider, ch models.Channel, webhooks []models.Webhook, logger zerolog.Logger) Report {
	var rep Report

	status, err := p.QueryLiveStatus(ctx, ch.ChannelID)
	if err != nil {
		logger.Warn().Err(err).Str("channel", ch.ChannelName).Msg("liveness query failed, skipping channel")
		rep.Skipped++
		return rep
	}
	rep.Checked++

	platform := p.Platform()
	switch {
	case status.Live && !ch.IsLive:
		// Went live. State is persisted before dispatch: a crash after this
		// point means the notification is lost, never duplicated.
		streamID := status.StreamID
		if err := c.store.UpdateStreamStatus(ctx, platform, ch.ChannelID, true, &streamID); err != nil {
			logger.Error().Err(err).Str("channel", ch.ChannelName).Msg("persist live state failed")
			rep.StoreErrors++
			return rep
		}
		rep.WentLive++
		logger.Info().Str("channel", ch.ChannelName).Str("stream_id", status.StreamID).Msg("went live")

		ev := buildEvent(platform, ch, status)
		for _, res := range c.sender.Broadcast(ctx, ev, webhooks) {
			if res.Err != nil {
				logger.Error().Err(res.Err).Str("server", res.ServerName).Int64("webhook_id", res.WebhookID).Msg("notify failed")
				rep.DeliveryFailed++
			} else {
				rep.Delivered++
			}
		}

	case !status.Live && ch.IsLive:
		// Went offline. Clear the remembered stream id; no notification.
		if err := c.store.UpdateStreamStatus(ctx, platform, ch.ChannelID, false, nil); err != nil {
			logger.Error().Err(err).Str("channel", ch.ChannelName).Msg("persist offline state failed")
			rep.StoreErrors++
			return rep
		}
		rep.WentOffline++
		logger.Info().Str("channel", ch.ChannelName).Msg("went offline")

	default:
		// No transition. Stamp last_checked; while live, keep the stream id
		// current in case the session rolled over.
		var streamID *string
		if status.Live {
			s := status.StreamID
			streamID = &s
		}
		if err := c.store.UpdateStreamStatus(ctx, platform, ch.ChannelID, status.Live, streamID); err != nil {
			logger.Error().Err(err).Str("channel", ch.ChannelName).Msg("stamp last_checked failed")
			rep.StoreErrors++
		}
	}
	return rep
}

// buildEvent derives the immutable LiveEvent handed to the dispatcher.
func buildEvent(platform models.Platform, ch models.Channel, status *provider.LiveStatus) models.LiveEvent {
	name := status.ChannelName
	if name == "" {
		name = ch.ChannelName
	}
	return models.LiveEvent{
		Platform:     platform,
		ChannelName:  name,
		StreamID:     status.StreamID,
		Title:        status.Title,
		URL:          status.URL,
		ThumbnailURL: status.ThumbnailURL,
		ViewerCount:  status.ViewerCount,
		StartedAt:    status.StartedAt,
	}
}
