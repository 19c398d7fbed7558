package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/citrusbot/citrus/internal/config"
)

// newTestTwitch points a Twitch client at a local test server.
func newTestTwitch(srv *httptest.Server) *Twitch {
	t := NewTwitch(config.Twitch{ClientID: "cid", ClientSecret: "secret"}, 5*time.Second)
	t.authURL = srv.URL + "/oauth2/token"
	t.apiURL = srv.URL + "/helix"
	return t
}

func twitchHandler(t *testing.T, tokenCalls *int, streamsBody string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenCalls != nil {
			*tokenCalls++
		}
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected token request: %v", r.Form)
		}
		fmt.Fprint(w, `{"access_token":"tok123","expires_in":3600}`)
	})
	mux.HandleFunc("GET /helix/streams", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok123" {
			t.Errorf("authorization: got %q", auth)
		}
		if cid := r.Header.Get("Client-ID"); cid != "cid" {
			t.Errorf("client id: got %q", cid)
		}
		fmt.Fprint(w, streamsBody)
	})
	return mux
}

func TestTwitchQueryOffline(t *testing.T) {
	srv := httptest.NewServer(twitchHandler(t, nil, `{"data":[]}`))
	defer srv.Close()

	status, err := newTestTwitch(srv).QueryLiveStatus(context.Background(), "100")
	if err != nil {
		t.Fatalf("QueryLiveStatus: %v", err)
	}
	if status.Live {
		t.Errorf("want offline, got %+v", status)
	}
}

func TestTwitchQueryLive(t *testing.T) {
	body := `{"data":[{
		"id":"s1","user_login":"alice","user_name":"Alice",
		"title":"hello","viewer_count":42,
		"started_at":"2025-06-01T20:00:00Z",
		"thumbnail_url":"https://cdn.example/thumb-{width}x{height}.jpg"
	}]}`
	srv := httptest.NewServer(twitchHandler(t, nil, body))
	defer srv.Close()

	status, err := newTestTwitch(srv).QueryLiveStatus(context.Background(), "100")
	if err != nil {
		t.Fatalf("QueryLiveStatus: %v", err)
	}
	if !status.Live || status.StreamID != "s1" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.URL != "https://twitch.tv/alice" {
		t.Errorf("url: got %q", status.URL)
	}
	if status.ThumbnailURL != "https://cdn.example/thumb-1280x720.jpg" {
		t.Errorf("thumbnail placeholder not resolved: %q", status.ThumbnailURL)
	}
	if status.ViewerCount != 42 {
		t.Errorf("viewers: got %d", status.ViewerCount)
	}
	if status.StartedAt == nil || !status.StartedAt.Equal(time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)) {
		t.Errorf("started at: got %v", status.StartedAt)
	}
}

func TestTwitchTokenIsReused(t *testing.T) {
	var tokenCalls int
	srv := httptest.NewServer(twitchHandler(t, &tokenCalls, `{"data":[]}`))
	defer srv.Close()

	client := newTestTwitch(srv)
	for i := 0; i < 3; i++ {
		if _, err := client.QueryLiveStatus(context.Background(), "100"); err != nil {
			t.Fatalf("QueryLiveStatus %d: %v", i, err)
		}
	}
	if tokenCalls != 1 {
		t.Errorf("want 1 token request for 3 queries, got %d", tokenCalls)
	}
}

func TestTwitchMalformedBodyIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok123","expires_in":3600}`)
	})
	mux.HandleFunc("GET /helix/streams", func(w http.ResponseWriter, _ *http.Request) {
		// 200 with a body that is not the streams schema.
		fmt.Fprint(w, `<html>maintenance</html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tw := NewTwitch(config.Twitch{ClientID: "cid", ClientSecret: "secret"}, 5*time.Second)
	tw.authURL = srv.URL + "/oauth2/token"
	tw.apiURL = srv.URL + "/helix"

	if _, err := tw.QueryLiveStatus(context.Background(), "100"); err == nil {
		t.Error("want error for malformed 200 body, got nil")
	}
}

func TestTwitchResolveChannel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok123","expires_in":3600}`)
	})
	mux.HandleFunc("GET /helix/users", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("login") == "alice" {
			fmt.Fprint(w, `{"data":[{"id":"100","login":"alice","display_name":"Alice"}]}`)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tw := newTestTwitch(srv)

	identity, err := tw.ResolveChannel(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ResolveChannel: %v", err)
	}
	if identity.ChannelID != "100" || identity.DisplayName != "Alice" {
		t.Errorf("unexpected identity: %+v", identity)
	}

	if _, err := tw.ResolveChannel(context.Background(), "nobody"); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("want ErrChannelNotFound, got %v", err)
	}
}
