package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestYouTube(srv *httptest.Server) *YouTube {
	y := NewYouTube("key123", 5*time.Second)
	y.apiURL = srv.URL
	return y
}

func TestYouTubeQueryOffline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "key123" {
			t.Errorf("missing api key: %v", r.URL.Query())
		}
		if r.URL.Query().Get("eventType") != "live" {
			t.Errorf("missing eventType=live: %v", r.URL.Query())
		}
		fmt.Fprint(w, `{"items":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	status, err := newTestYouTube(srv).QueryLiveStatus(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("QueryLiveStatus: %v", err)
	}
	if status.Live {
		t.Errorf("want offline, got %+v", status)
	}
}

const youtubeSearchBody = `{"items":[{
	"id":{"videoId":"v9"},
	"snippet":{
		"title":"premiere",
		"channelTitle":"Bob",
		"thumbnails":{"high":{"url":"https://i.ytimg.com/vi/v9/hq.jpg"}}
	}
}]}`

func TestYouTubeQueryLiveWithDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, youtubeSearchBody)
	})
	mux.HandleFunc("GET /videos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "v9" {
			t.Errorf("videos id: %v", r.URL.Query())
		}
		fmt.Fprint(w, `{"items":[{"liveStreamingDetails":{
			"concurrentViewers":"4321",
			"actualStartTime":"2025-06-01T20:00:00Z"
		}}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	status, err := newTestYouTube(srv).QueryLiveStatus(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("QueryLiveStatus: %v", err)
	}
	if !status.Live || status.StreamID != "v9" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.URL != "https://www.youtube.com/watch?v=v9" {
		t.Errorf("url: got %q", status.URL)
	}
	if status.ViewerCount != 4321 {
		t.Errorf("viewers: got %d", status.ViewerCount)
	}
	if status.StartedAt == nil || !status.StartedAt.Equal(time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)) {
		t.Errorf("started at: got %v", status.StartedAt)
	}
}

func TestYouTubeDetailFailureDegrades(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, youtubeSearchBody)
	})
	mux.HandleFunc("GET /videos", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	status, err := newTestYouTube(srv).QueryLiveStatus(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("QueryLiveStatus: %v", err)
	}
	if !status.Live || status.Title != "premiere" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.ViewerCount != 0 || status.StartedAt != nil {
		t.Errorf("want basic status without details, got %+v", status)
	}
}

func TestYouTubeSearchFailureIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend error", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	if _, err := newTestYouTube(srv).QueryLiveStatus(context.Background(), "UC1"); err == nil {
		t.Error("want error for failed search, got nil")
	}
}

func TestYouTubeResolveChannel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "UC1" {
			fmt.Fprint(w, `{"items":[{"id":"UC1","snippet":{"title":"Bob"}}]}`)
			return
		}
		fmt.Fprint(w, `{"items":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	y := newTestYouTube(srv)

	identity, err := y.ResolveChannel(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("ResolveChannel: %v", err)
	}
	if identity.ChannelID != "UC1" || identity.DisplayName != "Bob" {
		t.Errorf("unexpected identity: %+v", identity)
	}

	if _, err := y.ResolveChannel(context.Background(), "UCmissing"); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("want ErrChannelNotFound, got %v", err)
	}
}
