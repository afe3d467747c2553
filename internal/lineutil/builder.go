// Package lineutil builds LINE Messaging API messages within the platform's limits.
package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// QuickReplyItem represents an item in a quick reply.
type QuickReplyItem struct {
	ImageURL string
	Action   messaging_api.ActionInterface
}

// NewTextMessage creates a text message, truncating to the LINE limit.
func NewTextMessage(text string) *messaging_api.TextMessage {
	if len([]rune(text)) > MaxTextMessageLength {
		text = TruncateRunes(text, MaxTextMessageLength-3) + "..."
	}
	return &messaging_api.TextMessage{Text: text}
}

// NewImageMessage creates an image message. LINE requires HTTPS URLs.
// The static map is small enough to serve as its own preview.
func NewImageMessage(originalContentURL, previewImageURL string) *messaging_api.ImageMessage {
	if previewImageURL == "" {
		previewImageURL = originalContentURL
	}
	return &messaging_api.ImageMessage{
		OriginalContentUrl: originalContentURL,
		PreviewImageUrl:    previewImageURL,
	}
}

// NewLocationAction opens the location picker; the chosen point is sent back
// as a location message.
func NewLocationAction(label string) messaging_api.ActionInterface {
	return &messaging_api.LocationAction{Label: TruncateRunes(label, MaxQuickReplyLabel)}
}

// NewMessageAction sends text as the user when tapped.
func NewMessageAction(label, text string) messaging_api.ActionInterface {
	return &messaging_api.MessageAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Text:  text,
	}
}

// NewQuickReply creates a quick reply component (max 13 items).
func NewQuickReply(items []QuickReplyItem) *messaging_api.QuickReply {
	if len(items) > MaxQuickReplyItemCount {
		items = items[:MaxQuickReplyItemCount]
	}

	quickReplyItems := make([]messaging_api.QuickReplyItem, len(items))
	for i, item := range items {
		quickReplyItems[i] = messaging_api.QuickReplyItem{
			ImageUrl: item.ImageURL,
			Action:   item.Action,
		}
	}
	return &messaging_api.QuickReply{Items: quickReplyItems}
}

// AddQuickReplyToMessages attaches quick reply items to the last message.
// It is a no-op if the slice is empty or the last message cannot carry quick replies.
func AddQuickReplyToMessages(messages []messaging_api.MessageInterface, items ...QuickReplyItem) {
	if len(messages) == 0 || len(items) == 0 {
		return
	}
	qr := NewQuickReply(items)
	switch m := messages[len(messages)-1].(type) {
	case *messaging_api.TextMessage:
		m.QuickReply = qr
	case *messaging_api.ImageMessage:
		m.QuickReply = qr
	}
}

// TruncateRunes cuts text to at most maxRunes runes.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
