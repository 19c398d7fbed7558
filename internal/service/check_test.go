package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/citrusbot/citrus/internal/models"
	"github.com/citrusbot/citrus/internal/notify"
	"github.com/citrusbot/citrus/internal/provider"
)

// --- fakes ---

type channelKey struct {
	platform  models.Platform
	channelID string
}

type statusUpdate struct {
	platform  models.Platform
	channelID string
	isLive    bool
	streamID  *string
}

type fakeStore struct {
	channels map[channelKey]models.Channel
	webhooks []models.Webhook
	updates  []statusUpdate

	listChannelsErr error
	listWebhooksErr error
	updateErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{channels: make(map[channelKey]models.Channel)}
}

func (f *fakeStore) addChannel(c models.Channel) {
	f.channels[channelKey{c.Platform, c.ChannelID}] = c
}

func (f *fakeStore) ListChannels(_ context.Context, platform models.Platform) ([]models.Channel, error) {
	if f.listChannelsErr != nil {
		return nil, f.listChannelsErr
	}
	var out []models.Channel
	for _, c := range f.channels {
		if platform == "" || c.Platform == platform {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetChannel(_ context.Context, platform models.Platform, channelID string) (*models.Channel, error) {
	c, ok := f.channels[channelKey{platform, channelID}]
	if !ok {
		return nil, errors.New("not found")
	}
	return &c, nil
}

func (f *fakeStore) UpsertChannel(_ context.Context, platform models.Platform, channelID, channelName string) error {
	f.addChannel(models.Channel{Platform: platform, ChannelID: channelID, ChannelName: channelName})
	return nil
}

func (f *fakeStore) DeleteChannel(_ context.Context, platform models.Platform, channelID string) error {
	delete(f.channels, channelKey{platform, channelID})
	return nil
}

func (f *fakeStore) UpdateStreamStatus(_ context.Context, platform models.Platform, channelID string, isLive bool, streamID *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, statusUpdate{platform, channelID, isLive, streamID})
	key := channelKey{platform, channelID}
	c := f.channels[key]
	c.IsLive = isLive
	c.LastStreamID = streamID
	f.channels[key] = c
	return nil
}

func (f *fakeStore) ListWebhooks(_ context.Context) ([]models.Webhook, error) {
	if f.listWebhooksErr != nil {
		return nil, f.listWebhooksErr
	}
	return f.webhooks, nil
}

func (f *fakeStore) AddWebhook(_ context.Context, w *models.Webhook) (int64, error) {
	f.webhooks = append(f.webhooks, *w)
	return int64(len(f.webhooks)), nil
}

func (f *fakeStore) DeleteWebhook(context.Context, int64) error { return nil }

func (f *fakeStore) CreateChannelRequest(context.Context, *models.ChannelRequest) (int64, string, error) {
	return 0, "", nil
}

func (f *fakeStore) ListChannelRequests(context.Context, string) ([]models.ChannelRequest, error) {
	return nil, nil
}

func (f *fakeStore) GetChannelRequest(context.Context, int64) (*models.ChannelRequest, error) {
	return nil, nil
}

func (f *fakeStore) UpdateChannelRequestStatus(context.Context, int64, string) error { return nil }

type fakeProvider struct {
	platform models.Platform
	statuses map[string]*provider.LiveStatus
	errs     map[string]error
}

func (f *fakeProvider) Platform() models.Platform { return f.platform }

func (f *fakeProvider) ResolveChannel(context.Context, string) (*provider.ChannelIdentity, error) {
	return nil, provider.ErrChannelNotFound
}

func (f *fakeProvider) QueryLiveStatus(_ context.Context, channelID string) (*provider.LiveStatus, error) {
	if err, ok := f.errs[channelID]; ok {
		return nil, err
	}
	if s, ok := f.statuses[channelID]; ok {
		return s, nil
	}
	return &provider.LiveStatus{Live: false}, nil
}

type fakeBroadcaster struct {
	events  []models.LiveEvent
	failIDs map[int64]bool
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, ev models.LiveEvent, webhooks []models.Webhook) []notify.DeliveryResult {
	f.events = append(f.events, ev)
	results := make([]notify.DeliveryResult, len(webhooks))
	for i, w := range webhooks {
		results[i] = notify.DeliveryResult{WebhookID: w.ID, ServerName: w.ServerName}
		if f.failIDs[w.ID] {
			results[i].Err = errors.New("delivery failed")
		}
	}
	return results
}

func newChecker(s *fakeStore, providers []provider.Provider, b *fakeBroadcaster) *Checker {
	return NewChecker(s, providers, b, 0, zerolog.Nop())
}

func strptr(s string) *string { return &s }

// --- tests ---

func TestOfflineStaysOffline(t *testing.T) {
	s := newFakeStore()
	s.webhooks = []models.Webhook{{ID: 1, ServerName: "guild"}}
	s.addChannel(models.Channel{Platform: models.PlatformTwitch, ChannelID: "100", ChannelName: "alice"})

	p := &fakeProvider{platform: models.PlatformTwitch}
	b := &fakeBroadcaster{}
	c := newChecker(s, []provider.Provider{p}, b)

	for i := 0; i < 2; i++ {
		if _, err := c.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	if len(b.events) != 0 {
		t.Errorf("want 0 events, got %d", len(b.events))
	}
	if len(s.updates) != 2 {
		t.Fatalf("want 2 status updates, got %d", len(s.updates))
	}
	for _, u := range s.updates {
		if u.isLive || u.streamID != nil {
			t.Errorf("want offline update with nil stream id, got %+v", u)
		}
	}
}

func TestWentLiveNotifiesOnce(t *testing.T) {
	s := newFakeStore()
	s.webhooks = []models.Webhook{{ID: 1, ServerName: "guild"}}
	s.addChannel(models.Channel{Platform: models.PlatformTwitch, ChannelID: "100", ChannelName: "alice"})

	p := &fakeProvider{
		platform: models.PlatformTwitch,
		statuses: map[string]*provider.LiveStatus{
			"100": {Live: true, StreamID: "s1", Title: "hello", ChannelName: "Alice", URL: "https://twitch.tv/alice"},
		},
	}
	b := &fakeBroadcaster{}
	c := newChecker(s, []provider.Provider{p}, b)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.WentLive != 1 {
		t.Errorf("want 1 went_live, got %d", report.WentLive)
	}
	if len(b.events) != 1 {
		t.Fatalf("want 1 event, got %d", len(b.events))
	}
	if b.events[0].StreamID != "s1" || b.events[0].ChannelName != "Alice" {
		t.Errorf("unexpected event: %+v", b.events[0])
	}

	got := s.channels[channelKey{models.PlatformTwitch, "100"}]
	if !got.IsLive || got.LastStreamID == nil || *got.LastStreamID != "s1" {
		t.Errorf("want persisted live with stream id s1, got %+v", got)
	}
}

func TestSustainedLiveStaysSilent(t *testing.T) {
	s := newFakeStore()
	s.webhooks = []models.Webhook{{ID: 1, ServerName: "guild"}}
	s.addChannel(models.Channel{
		Platform: models.PlatformTwitch, ChannelID: "100", ChannelName: "alice",
		IsLive: true, LastStreamID: strptr("s1"),
	})

	p := &fakeProvider{
		platform: models.PlatformTwitch,
		statuses: map[string]*provider.LiveStatus{
			"100": {Live: true, StreamID: "s1", Title: "hello"},
		},
	}
	b := &fakeBroadcaster{}
	c := newChecker(s, []provider.Provider{p}, b)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(b.events) != 0 {
		t.Errorf("want 0 events while still live, got %d", len(b.events))
	}
	if report.WentLive != 0 || report.Checked != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if len(s.updates) != 1 {
		t.Fatalf("want 1 last_checked stamp, got %d", len(s.updates))
	}
	u := s.updates[0]
	if !u.isLive || u.streamID == nil || *u.streamID != "s1" {
		t.Errorf("want live update keeping stream id, got %+v", u)
	}
}

func TestWentOfflineClearsStreamID(t *testing.T) {
	s := newFakeStore()
	s.webhooks = []models.Webhook{{ID: 1, ServerName: "guild"}}
	s.addChannel(models.Channel{
		Platform: models.PlatformYouTube, ChannelID: "UC1", ChannelName: "bob",
		IsLive: true, LastStreamID: strptr("v9"),
	})

	p := &fakeProvider{platform: models.PlatformYouTube}
	b := &fakeBroadcaster{}
	c := newChecker(s, []provider.Provider{p}, b)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(b.events) != 0 {
		t.Errorf("want 0 events on going offline, got %d", len(b.events))
	}
	if report.WentOffline != 1 {
		t.Errorf("want 1 went_offline, got %d", report.WentOffline)
	}
	got := s.channels[channelKey{models.PlatformYouTube, "UC1"}]
	if got.IsLive || got.LastStreamID != nil {
		t.Errorf("want offline with cleared stream id, got %+v", got)
	}
}

func TestTransientFailureSkipsChannel(t *testing.T) {
	s := newFakeStore()
	s.webhooks = []models.Webhook{{ID: 1, ServerName: "guild"}}
	s.addChannel(models.Channel{Platform: models.PlatformTwitch, ChannelID: "100", ChannelName: "alice"})

	p := &fakeProvider{
		platform: models.PlatformTwitch,
		errs:     map[string]error{"100": errors.New("HTTP 503")},
	}
	b := &fakeBroadcaster{}
	c := newChecker(s, []provider.Provider{p}, b)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Skipped != 1 || report.Checked != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	// The row must not be touched at all, not even last_checked.
	if len(s.updates) != 0 {
		t.Errorf("want 0 status updates after transient failure, got %d", len(s.updates))
	}
	if len(b.events) != 0 {
		t.Errorf("want 0 events, got %d", len(b.events))
	}
}

func TestPartialDeliveryFailureIsIsolated(t *testing.T) {
	s := newFakeStore()
	s.webhooks = []models.Webhook{
		{ID: 1, ServerName: "a"},
		{ID: 2, ServerName: "b"},
		{ID: 3, ServerName: "c"},
	}
	s.addChannel(models.Channel{Platform: models.PlatformTwitch, ChannelID: "100", ChannelName: "alice"})

	p := &fakeProvider{
		platform: models.PlatformTwitch,
		statuses: map[string]*provider.LiveStatus{
			"100": {Live: true, StreamID: "s1"},
		},
	}
	b := &fakeBroadcaster{failIDs: map[int64]bool{2: true}}
	c := newChecker(s, []provider.Provider{p}, b)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Delivered != 2 {
		t.Errorf("want 2 delivered, got %d", report.Delivered)
	}
	if report.DeliveryFailed != 1 {
		t.Errorf("want 1 delivery failure, got %d", report.DeliveryFailed)
	}
	// Live state was persisted regardless of the delivery failure.
	got := s.channels[channelKey{models.PlatformTwitch, "100"}]
	if !got.IsLive {
		t.Errorf("want channel persisted live, got %+v", got)
	}
}

func TestTwoPlatformScenario(t *testing.T) {
	s := newFakeStore()
	s.webhooks = []models.Webhook{{ID: 1, ServerName: "a"}, {ID: 2, ServerName: "b"}}
	s.addChannel(models.Channel{Platform: models.PlatformTwitch, ChannelID: "100", ChannelName: "alice"})
	s.addChannel(models.Channel{Platform: models.PlatformYouTube, ChannelID: "UC1", ChannelName: "bob"})

	twitch := &fakeProvider{
		platform: models.PlatformTwitch,
		statuses: map[string]*provider.LiveStatus{
			"100": {Live: true, StreamID: "s1", ChannelName: "Alice"},
		},
	}
	youtube := &fakeProvider{platform: models.PlatformYouTube}
	b := &fakeBroadcaster{}
	c := newChecker(s, []provider.Provider{twitch, youtube}, b)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(b.events) != 1 {
		t.Fatalf("want exactly 1 event, got %d", len(b.events))
	}
	if b.events[0].Platform != models.PlatformTwitch || b.events[0].StreamID != "s1" {
		t.Errorf("unexpected event: %+v", b.events[0])
	}
	if report.Checked != 2 || report.WentLive != 1 || report.Delivered != 2 {
		t.Errorf("unexpected report: %+v", report)
	}

	a := s.channels[channelKey{models.PlatformTwitch, "100"}]
	if !a.IsLive || a.LastStreamID == nil || *a.LastStreamID != "s1" {
		t.Errorf("want twitch channel live with token s1, got %+v", a)
	}
	bb := s.channels[channelKey{models.PlatformYouTube, "UC1"}]
	if bb.IsLive {
		t.Errorf("want youtube channel still offline, got %+v", bb)
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	s := newFakeStore()
	s.webhooks = []models.Webhook{{ID: 1, ServerName: "guild"}}
	s.addChannel(models.Channel{Platform: models.PlatformTwitch, ChannelID: "100", ChannelName: "alice"})

	p := &fakeProvider{
		platform: models.PlatformTwitch,
		statuses: map[string]*provider.LiveStatus{
			"100": {Live: true, StreamID: "s1"},
		},
	}
	b := &fakeBroadcaster{}
	c := newChecker(s, []provider.Provider{p}, b)

	for i := 0; i < 2; i++ {
		if _, err := c.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	if len(b.events) != 1 {
		t.Errorf("want exactly 1 event across both runs, got %d", len(b.events))
	}
}

func TestNoWebhooksShortCircuits(t *testing.T) {
	s := newFakeStore()
	s.addChannel(models.Channel{Platform: models.PlatformTwitch, ChannelID: "100", ChannelName: "alice"})

	p := &fakeProvider{
		platform: models.PlatformTwitch,
		statuses: map[string]*provider.LiveStatus{
			"100": {Live: true, StreamID: "s1"},
		},
	}
	b := &fakeBroadcaster{}
	c := newChecker(s, []provider.Provider{p}, b)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Checked != 0 || len(s.updates) != 0 || len(b.events) != 0 {
		t.Errorf("want untouched state with no webhooks, got report=%+v updates=%d events=%d",
			report, len(s.updates), len(b.events))
	}
}

func TestListChannelsFailureAbandonsOnlyThatPlatform(t *testing.T) {
	s := newFakeStore()
	s.webhooks = []models.Webhook{{ID: 1, ServerName: "guild"}}
	s.addChannel(models.Channel{Platform: models.PlatformYouTube, ChannelID: "UC1", ChannelName: "bob"})

	// Fail the twitch listing only.
	failing := &listFailStore{fakeStore: s, failPlatform: models.PlatformTwitch}

	twitch := &fakeProvider{platform: models.PlatformTwitch}
	youtube := &fakeProvider{
		platform: models.PlatformYouTube,
		statuses: map[string]*provider.LiveStatus{
			"UC1": {Live: true, StreamID: "v1"},
		},
	}
	b := &fakeBroadcaster{}
	c := NewChecker(failing, []provider.Provider{twitch, youtube}, b, 0, zerolog.Nop())

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.StoreErrors != 1 {
		t.Errorf("want 1 store error, got %d", report.StoreErrors)
	}
	// YouTube still made full progress.
	if report.WentLive != 1 || len(b.events) != 1 {
		t.Errorf("want youtube transition despite twitch store failure, report=%+v events=%d",
			report, len(b.events))
	}
}

// listFailStore fails ListChannels for one platform and delegates the rest.
type listFailStore struct {
	*fakeStore
	failPlatform models.Platform
}

func (l *listFailStore) ListChannels(ctx context.Context, platform models.Platform) ([]models.Channel, error) {
	if platform == l.failPlatform {
		return nil, errors.New("connection refused")
	}
	return l.fakeStore.ListChannels(ctx, platform)
}
