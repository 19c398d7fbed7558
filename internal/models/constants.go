package models

// Platform identifies which streaming service a channel belongs to.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
)

// Platforms lists every supported platform, in polling order.
var Platforms = []Platform{PlatformTwitch, PlatformYouTube}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return p == PlatformTwitch || p == PlatformYouTube
}

// Label returns the human-readable platform name used in notifications.
func (p Platform) Label() string {
	switch p {
	case PlatformTwitch:
		return "Twitch"
	case PlatformYouTube:
		return "YouTube"
	default:
		return string(p)
	}
}

// AccentColor returns the embed accent color for the platform.
func (p Platform) AccentColor() int {
	switch p {
	case PlatformTwitch:
		return 0x6441A4
	case PlatformYouTube:
		return 0xFF0000
	default:
		return 0x99AAB5
	}
}

// Channel request statuses.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)
