package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/citrusbot/citrus/internal/models"
)

const youtubeAPIURL = "https://www.googleapis.com/youtube/v3"

// YouTube queries the YouTube Data API v3 with a plain API key.
type YouTube struct {
	apiKey     string
	httpClient *http.Client

	apiURL string
}

// NewYouTube creates a YouTube client.
func NewYouTube(apiKey string, timeout time.Duration) *YouTube {
	return &YouTube{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     youtubeAPIURL,
	}
}

// Platform implements Provider.
func (y *YouTube) Platform() models.Platform {
	return models.PlatformYouTube
}

// get performs a keyed GET against the Data API and decodes into dst.
func (y *YouTube) get(ctx context.Context, path string, query url.Values, dst any) error {
	query.Set("key", y.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		y.apiURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("youtube API %s: HTTP %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

type youtubeChannelsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

// ResolveChannel looks up a channel by its channel id.
func (y *YouTube) ResolveChannel(ctx context.Context, query string) (*ChannelIdentity, error) {
	var channels youtubeChannelsResponse
	q := url.Values{"part": {"snippet"}, "id": {query}}
	if err := y.get(ctx, "/channels", q, &channels); err != nil {
		return nil, err
	}
	if len(channels.Items) == 0 {
		return nil, ErrChannelNotFound
	}
	item := channels.Items[0]
	return &ChannelIdentity{ChannelID: item.ID, DisplayName: item.Snippet.Title}, nil
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			Thumbnails   struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type youtubeVideosResponse struct {
	Items []struct {
		LiveStreamingDetails *struct {
			// The Data API reports concurrentViewers as a JSON string.
			ConcurrentViewers string `json:"concurrentViewers"`
			ActualStartTime   string `json:"actualStartTime"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

// QueryLiveStatus searches for an active live broadcast on the channel, then
// fetches viewer count and start time from the videos endpoint. A failed
// detail lookup degrades to the basic search result rather than failing the
// whole query.
func (y *YouTube) QueryLiveStatus(ctx context.Context, channelID string) (*LiveStatus, error) {
	var search youtubeSearchResponse
	q := url.Values{
		"part":       {"snippet"},
		"channelId":  {channelID},
		"eventType":  {"live"},
		"type":       {"video"},
		"maxResults": {"1"},
	}
	if err := y.get(ctx, "/search", q, &search); err != nil {
		return nil, err
	}
	if len(search.Items) == 0 {
		return &LiveStatus{Live: false}, nil
	}

	item := search.Items[0]
	videoID := item.ID.VideoID
	status := &LiveStatus{
		Live:         true,
		StreamID:     videoID,
		Title:        item.Snippet.Title,
		ChannelName:  item.Snippet.ChannelTitle,
		URL:          "https://www.youtube.com/watch?v=" + videoID,
		ThumbnailURL: item.Snippet.Thumbnails.High.URL,
	}

	var videos youtubeVideosResponse
	vq := url.Values{"part": {"liveStreamingDetails,snippet"}, "id": {videoID}}
	if err := y.get(ctx, "/videos", vq, &videos); err != nil {
		return status, nil
	}
	if len(videos.Items) == 0 || videos.Items[0].LiveStreamingDetails == nil {
		return status, nil
	}

	details := videos.Items[0].LiveStreamingDetails
	if n, err := strconv.Atoi(details.ConcurrentViewers); err == nil {
		status.ViewerCount = n
	}
	if ts, err := time.Parse(time.RFC3339, details.ActualStartTime); err == nil {
		status.StartedAt = &ts
	}
	return status, nil
}
