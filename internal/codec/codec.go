// Package codec translates messages to and from the flat record format used
// by the remote document store.
package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mrezende/courier/internal/identity"
)

// DateLayout is the fixed medium-date/long-time format messages carry on the
// wire. Timestamps are rendered in UTC so records stay parseable regardless
// of the device locale.
const DateLayout = "Jan 2, 2006 at 3:04:05 PM MST"

// Record is a message in its wire form.
type Record = map[string]any

// Reasons a record can fail to decode.
const (
	ReasonMissing   = "missing"
	ReasonMalformed = "malformed"
)

// DecodeError reports a single undecodable record. FetchAll skips such
// records instead of failing the whole thread.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message: %s field %q", e.Reason, e.Field)
}

func errMissing(field string) error {
	return &DecodeError{Field: field, Reason: ReasonMissing}
}

func errMalformed(field string) error {
	return &DecodeError{Field: field, Reason: ReasonMalformed}
}

// FormatDate renders t in the wire date format.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NewMessageID builds a globally unique message id from the counterpart,
// the sender and the send time.
func NewMessageID(counterpart, sender identity.Identity, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s", counterpart, sender, FormatDate(at))
}

// ThreadID derives the conversation id assigned to a brand-new conversation
// from its first message id. Immutable once assigned.
func ThreadID(messageID string) string {
	return "conversation_" + messageID
}

// Content returns the wire content string for a message kind: the literal
// text, the media URL, or "lon,lat" for locations (longitude first, by
// convention of this format).
func Content(k Kind) string {
	switch v := k.(type) {
	case Text:
		return string(v)
	case Emoji:
		return string(v)
	case Photo:
		return v.URL
	case Video:
		return v.URL
	case Location:
		return fmt.Sprintf("%v,%v", v.Longitude, v.Latitude)
	default:
		return ""
	}
}

// Encode maps a message to its flat record. The display name is supplied by
// the caller since it is denormalized into every record.
func Encode(m Message, displayName string) Record {
	return Record{
		"id":           m.ID,
		"type":         m.Kind.Tag(),
		"content":      Content(m.Kind),
		"date":         FormatDate(m.SentDate),
		"sender_email": m.Sender.String(),
		"name":         displayName,
		"is_read":      false,
	}
}

// Decode rebuilds a message from its flat record. Unknown type tags fall
// back to a text message carrying the raw content, so a newer peer's records
// still render.
func Decode(rec Record) (Message, error) {
	id, err := stringField(rec, "id")
	if err != nil {
		return Message{}, err
	}
	typeTag, err := stringField(rec, "type")
	if err != nil {
		return Message{}, err
	}
	content, err := stringField(rec, "content")
	if err != nil {
		return Message{}, err
	}
	dateStr, err := stringField(rec, "date")
	if err != nil {
		return Message{}, err
	}
	sender, err := stringField(rec, "sender_email")
	if err != nil {
		return Message{}, err
	}
	if _, err := stringField(rec, "name"); err != nil {
		return Message{}, err
	}

	sentDate, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return Message{}, errMalformed("date")
	}

	var kind Kind
	switch typeTag {
	case "text":
		kind = Text(content)
	case "emoji":
		kind = Emoji(content)
	case "photo":
		kind = Photo{URL: content}
	case "video":
		kind = Video{URL: content}
	case "location":
		kind, err = decodeLocation(content)
		if err != nil {
			return Message{}, err
		}
	default:
		kind = Text(content)
	}

	return Message{
		ID:       id,
		Sender:   identity.Identity(sender),
		SentDate: sentDate,
		Kind:     kind,
	}, nil
}

func decodeLocation(content string) (Kind, error) {
	parts := strings.Split(content, ",")
	if len(parts) != 2 {
		return nil, errMalformed("location")
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, errMalformed("location")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, errMalformed("location")
	}
	return Location{Latitude: lat, Longitude: lon}, nil
}

func stringField(rec Record, field string) (string, error) {
	v, ok := rec[field]
	if !ok {
		return "", errMissing(field)
	}
	s, ok := v.(string)
	if !ok {
		return "", errMalformed(field)
	}
	return s, nil
}
