// Package domain contains the core types shared across the service.
package domain

type ChannelType string

const (
	ChannelTypeDiscord    ChannelType = "discord"
	ChannelTypePushbullet ChannelType = "pushbullet"
)

// Notification is a single entry from the user's Moodle notification stream.
// ID is assigned monotonically by Moodle and is the sole ordering key.
type Notification struct {
	ID          int64
	Subject     string
	BodyHTML    string
	SmallBody   string
	SenderID    *int64
	TimeCreated int64
}

// SenderIdentity describes who sent a notification. Resolved lazily from
// Moodle per dispatch; never cached across dispatches.
type SenderIdentity struct {
	FullName        string
	ProfileImageURL string
}
