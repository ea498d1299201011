package service

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/whatsapp"
)

// ErrIgnorable marks provider messages the inbox does not handle. Deliveries
// carrying them are acknowledged without any state change.
var ErrIgnorable = errors.New("message type is not handled")

// Kind is the classified type of an inbound message.
type Kind string

const (
	KindText        Kind = "text"
	KindButtonReply Kind = "button_reply"
	KindImage       Kind = "image"
	KindVideo       Kind = "video"
	KindAudio       Kind = "audio"
	KindSticker     Kind = "sticker"
	KindDocument    Kind = "document"
)

// MediaRef is provider media still to be fetched.
type MediaRef struct {
	Handle   string
	MimeType string
	// FileName is the provider-supplied name; empty for everything but documents.
	FileName string
}

// ClassifiedMessage is a normalized inbound message.
type ClassifiedMessage struct {
	Kind    Kind
	Message model.Message
	Preview string
	Media   *MediaRef
}

// Classify normalizes a provider message. It returns ErrIgnorable for types
// and shapes that are not handled. now is used when the provider timestamp
// cannot be parsed.
func Classify(msg *whatsapp.Message, now time.Time) (*ClassifiedMessage, error) {
	if msg == nil || msg.ID == "" {
		return nil, ErrIgnorable
	}

	out := &ClassifiedMessage{
		Message: model.Message{
			ID:        msg.ID,
			Sender:    model.SenderCustomer,
			Timestamp: parseTimestamp(msg.Timestamp, now),
		},
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return nil, ErrIgnorable
		}
		out.Kind = KindText
		out.Message.Text = msg.Text.Body
		out.Preview = msg.Text.Body

	case "interactive":
		if msg.Interactive == nil || msg.Interactive.Type != "button_reply" || msg.Interactive.ButtonReply == nil {
			return nil, ErrIgnorable
		}
		out.Kind = KindButtonReply
		out.Message.Text = msg.Interactive.ButtonReply.Title
		out.Preview = msg.Interactive.ButtonReply.Title

	case "image", "video", "audio", "sticker", "document":
		media := mediaContent(msg)
		if media == nil || media.ID == "" {
			return nil, ErrIgnorable
		}
		out.Kind = Kind(msg.Type)
		switch out.Kind {
		case KindAudio, KindSticker:
			// Voice notes and stickers carry no caption.
		default:
			out.Message.Text = media.Caption
		}
		out.Preview = Preview(out.Kind, out.Message.Text, media.Filename)
		out.Media = &MediaRef{
			Handle:   media.ID,
			MimeType: media.MimeType,
			FileName: media.Filename,
		}

	default:
		return nil, ErrIgnorable
	}

	return out, nil
}

// Preview returns the conversation-list preview for a message of kind.
func Preview(kind Kind, caption, fileName string) string {
	var label string
	switch kind {
	case KindText, KindButtonReply:
		return caption
	case KindImage:
		label = "📷 Image"
	case KindVideo:
		label = "📹 Video"
	case KindAudio:
		return "🎤 Voice Message"
	case KindSticker:
		return "Sticker"
	case KindDocument:
		if fileName != "" {
			label = "📄 " + fileName
		} else {
			label = "📄 Document"
		}
	default:
		return caption
	}
	if caption != "" {
		return label + ": " + caption
	}
	return label
}

// KindForMime picks the attachment kind an outbound file is previewed as.
func KindForMime(mimeType string) Kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	}
	return KindDocument
}

func mediaContent(msg *whatsapp.Message) *whatsapp.MediaContent {
	switch msg.Type {
	case "image":
		return msg.Image
	case "video":
		return msg.Video
	case "audio":
		return msg.Audio
	case "sticker":
		return msg.Sticker
	case "document":
		return msg.Document
	}
	return nil
}

// parseTimestamp converts provider epoch seconds to UTC.
func parseTimestamp(s string, fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return fallback.UTC()
	}
	return time.Unix(secs, 0).UTC()
}
