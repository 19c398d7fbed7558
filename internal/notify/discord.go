// Package notify renders live events into Discord webhook payloads and
// delivers them. Each webhook either carries a plain-text message template or
// receives the default rich embed.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/citrusbot/citrus/internal/models"
)

const footerText = "Citrus Notify"

// Sender delivers Discord webhook payloads.
type Sender struct {
	httpClient *http.Client
	userAgent  string
}

// NewSender creates a Sender.
func NewSender(timeout time.Duration, userAgent string) *Sender {
	return &Sender{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// Payload is the JSON body posted to a Discord webhook. Exactly one of
// Content (template mode) or Embeds (default mode) is set.
type Payload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is a Discord rich embed.
type Embed struct {
	Title       string        `json:"title"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
	Timestamp   string        `json:"timestamp"`
	Color       int           `json:"color"`
	Thumbnail   *EmbedMedia   `json:"thumbnail,omitempty"`
	Image       *EmbedMedia   `json:"image,omitempty"`
	Footer      *EmbedFooter  `json:"footer,omitempty"`
	Fields      []EmbedField  `json:"fields,omitempty"`
}

type EmbedMedia struct {
	URL string `json:"url"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// DeliveryResult is the outcome of one webhook delivery attempt.
type DeliveryResult struct {
	WebhookID  int64
	ServerName string
	Err        error
}

// BuildPayload renders the payload for one webhook: template substitution
// when the webhook has a message template, the rich embed otherwise.
func BuildPayload(ev models.LiveEvent, w models.Webhook) Payload {
	if w.MessageTemplate != nil && *w.MessageTemplate != "" {
		return Payload{Content: RenderTemplate(*w.MessageTemplate, ev)}
	}
	return Payload{Embeds: []Embed{BuildEmbed(ev)}}
}

// BuildEmbed builds the default rich embed for a live event.
func BuildEmbed(ev models.LiveEvent) Embed {
	e := Embed{
		Title:       ev.Title,
		Type:        "rich",
		Description: fmt.Sprintf("%s started streaming!", ev.ChannelName),
		URL:         ev.URL,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Color:       ev.Platform.AccentColor(),
		Footer:      &EmbedFooter{Text: footerText},
		Fields: []EmbedField{
			{Name: "Platform", Value: ev.Platform.Label(), Inline: true},
			{Name: "Started at", Value: startedAtText(ev), Inline: true},
		},
	}
	if ev.ThumbnailURL != "" {
		e.Thumbnail = &EmbedMedia{URL: ev.ThumbnailURL}
		e.Image = &EmbedMedia{URL: ev.ThumbnailURL}
	}
	if ev.ViewerCount > 0 {
		e.Fields = append(e.Fields, EmbedField{
			Name: "Viewers", Value: strconv.Itoa(ev.ViewerCount), Inline: true,
		})
	}
	return e
}

// RenderTemplate substitutes event fields into a plain-text template.
// Supported placeholders: {title} {channel_name} {url} {started_at}
// {viewer_count} {platform} {thumbnail}.
func RenderTemplate(tpl string, ev models.LiveEvent) string {
	r := strings.NewReplacer(
		"{title}", ev.Title,
		"{channel_name}", ev.ChannelName,
		"{url}", ev.URL,
		"{started_at}", startedAtText(ev),
		"{viewer_count}", strconv.Itoa(ev.ViewerCount),
		"{platform}", ev.Platform.Label(),
		"{thumbnail}", ev.ThumbnailURL,
	)
	return r.Replace(tpl)
}

func startedAtText(ev models.LiveEvent) string {
	at := time.Now()
	if ev.StartedAt != nil {
		at = *ev.StartedAt
	}
	return at.Format("2006-01-02 15:04:05")
}

// Send posts the rendered payload for one webhook. Non-2xx is a delivery
// failure for that webhook only.
func (s *Sender) Send(ctx context.Context, w models.Webhook, ev models.LiveEvent) error {
	body, err := json.Marshal(BuildPayload(ev, w))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Broadcast delivers the event to every webhook, each attempted
// independently and concurrently. One webhook's failure never prevents
// delivery to the others, and nothing is retried.
func (s *Sender) Broadcast(ctx context.Context, ev models.LiveEvent, webhooks []models.Webhook) []DeliveryResult {
	results := make([]DeliveryResult, len(webhooks))

	var wg sync.WaitGroup
	for i, w := range webhooks {
		wg.Add(1)
		go func(i int, w models.Webhook) {
			defer wg.Done()
			results[i] = DeliveryResult{
				WebhookID:  w.ID,
				ServerName: w.ServerName,
				Err:        s.Send(ctx, w, ev),
			}
		}(i, w)
	}
	wg.Wait()

	return results
}
