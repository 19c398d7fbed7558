package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/citrusbot/citrus/internal/config"
	"github.com/citrusbot/citrus/internal/models"
)

const (
	twitchAuthURL = "https://id.twitch.tv/oauth2/token"
	twitchAPIURL  = "https://api.twitch.tv/helix"

	// Refresh the app token this long before Twitch says it expires.
	twitchTokenMargin = 5 * time.Minute

	// Helix thumbnail URLs embed a size placeholder.
	twitchThumbPlaceholder = "{width}x{height}"
	twitchThumbSize        = "1280x720"
)

// Twitch queries the Twitch Helix API. It owns an app access token obtained
// via the client-credentials grant and refreshes it proactively; callers
// never see token handling.
type Twitch struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client

	authURL string
	apiURL  string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewTwitch creates a Twitch client from app credentials.
func NewTwitch(creds config.Twitch, timeout time.Duration) *Twitch {
	return &Twitch{
		clientID:     creds.ClientID,
		clientSecret: creds.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		authURL:      twitchAuthURL,
		apiURL:       twitchAPIURL,
	}
}

// Platform implements Provider.
func (t *Twitch) Platform() models.Platform {
	return models.PlatformTwitch
}

type twitchTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a valid app token, reusing the cached one while it has
// more than twitchTokenMargin left.
func (t *Twitch) accessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.tokenExpiry) {
		return t.token, nil
	}

	form := url.Values{
		"client_id":     {t.clientID},
		"client_secret": {t.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: HTTP %d", resp.StatusCode)
	}

	var tok twitchTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response: missing access_token")
	}

	t.token = tok.AccessToken
	t.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - twitchTokenMargin)
	return t.token, nil
}

// get performs an authenticated Helix GET and decodes the response into dst.
func (t *Twitch) get(ctx context.Context, path string, query url.Values, dst any) error {
	token, err := t.accessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.apiURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-ID", t.clientID)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("twitch API %s: HTTP %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

type twitchUsersResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Login       string `json:"login"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
}

// ResolveChannel looks up a channel by login name.
func (t *Twitch) ResolveChannel(ctx context.Context, query string) (*ChannelIdentity, error) {
	var users twitchUsersResponse
	if err := t.get(ctx, "/users", url.Values{"login": {query}}, &users); err != nil {
		return nil, err
	}
	if len(users.Data) == 0 {
		return nil, ErrChannelNotFound
	}
	u := users.Data[0]
	name := u.DisplayName
	if name == "" {
		name = u.Login
	}
	return &ChannelIdentity{ChannelID: u.ID, DisplayName: name}, nil
}

type twitchStreamsResponse struct {
	Data []struct {
		ID           string `json:"id"`
		UserLogin    string `json:"user_login"`
		UserName     string `json:"user_name"`
		Title        string `json:"title"`
		ViewerCount  int    `json:"viewer_count"`
		StartedAt    string `json:"started_at"`
		ThumbnailURL string `json:"thumbnail_url"`
	} `json:"data"`
}

// QueryLiveStatus reports whether the channel is live. Helix returns an
// empty data array for an offline channel, which is a normal result.
func (t *Twitch) QueryLiveStatus(ctx context.Context, channelID string) (*LiveStatus, error) {
	var streams twitchStreamsResponse
	if err := t.get(ctx, "/streams", url.Values{"user_id": {channelID}}, &streams); err != nil {
		return nil, err
	}
	if len(streams.Data) == 0 {
		return &LiveStatus{Live: false}, nil
	}

	s := streams.Data[0]
	status := &LiveStatus{
		Live:         true,
		StreamID:     s.ID,
		Title:        s.Title,
		ChannelName:  s.UserName,
		URL:          "https://twitch.tv/" + s.UserLogin,
		ThumbnailURL: strings.ReplaceAll(s.ThumbnailURL, twitchThumbPlaceholder, twitchThumbSize),
		ViewerCount:  s.ViewerCount,
	}
	if ts, err := time.Parse(time.RFC3339, s.StartedAt); err == nil {
		status.StartedAt = &ts
	}
	return status, nil
}
