package codec

import (
	"time"

	"github.com/mrezende/courier/internal/identity"
)

// Message is one entry in a conversation thread.
type Message struct {
	ID       string
	Sender   identity.Identity
	SentDate time.Time
	Kind     Kind
}

// Kind is the payload variant of a message.
type Kind interface {
	// Tag returns the wire type tag for this kind.
	Tag() string
}

// Text is a plain text message.
type Text string

// Emoji is a single-emoji message.
type Emoji string

// MediaRef points at an uploaded attachment. Only the URL is persisted;
// placeholder and size are view-layer hints.
type MediaRef struct {
	URL         string
	Placeholder string
	Width       int
	Height      int
}

// Photo is a photo attachment message.
type Photo MediaRef

// Video is a video attachment message.
type Video MediaRef

// Location is a shared map coordinate.
type Location struct {
	Latitude  float64
	Longitude float64
}

func (Text) Tag() string     { return "text" }
func (Emoji) Tag() string    { return "emoji" }
func (Photo) Tag() string    { return "photo" }
func (Video) Tag() string    { return "video" }
func (Location) Tag() string { return "location" }
