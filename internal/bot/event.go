// Package bot holds the platform-independent request handling shared by the
// LINE and Telegram transports: command routing, per-user rate limiting,
// last-location memory and report generation.
package bot

import (
	"strings"
)

// Platforms.
const (
	PlatformLine     = "line"
	PlatformTelegram = "telegram"
)

// Event identifies who sent an inbound message and where to reply.
type Event struct {
	Platform string
	ChatID   string
	UserID   string
	Username string // Handle without "@"; empty when the platform has none
	Language string // User language code if the platform provides one
}

// UserKey is the per-user key for rate limiting and last-location storage.
func (e Event) UserKey() string {
	if e.UserID == "" {
		return ""
	}
	return e.Platform + ":" + e.UserID
}

// Requester names the user in reports ("@alice" or "ID:12345").
func (e Event) Requester() string {
	if e.Username != "" {
		return "@" + e.Username
	}
	return "ID:" + e.UserID
}

// Reply is one outbound message. A reply may carry an image, text or both;
// transports decide how to render the combination.
type Reply struct {
	Text           string
	ImageURL       string
	LocationButton string // Label of a "share location" button; empty = none
	RemoveKeyboard bool   // Hide a previously shown location keyboard
}

// Outcome is what a transport should deliver for one event.
type Outcome struct {
	Replies []Reply // To the requesting chat
	Mirror  []Reply // To the operator chat, if configured
}

// Command is a recognized bot command.
type Command string

// Known commands.
const (
	CommandNone     Command = ""
	CommandStart    Command = "start"
	CommandHelp     Command = "help"
	CommandForecast Command = "forecast"
	CommandUnknown  Command = "unknown"
)

// ParseCommand recognizes "/start", "start", "/start@MyBot" and the like.
// Unrecognized slash commands return CommandUnknown; other text returns CommandNone.
func ParseCommand(text string) Command {
	text = strings.TrimSpace(text)
	if text == "" {
		return CommandNone
	}

	slash := strings.HasPrefix(text, "/")
	word := strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(word, " \t\n"); i >= 0 {
		if !slash {
			return CommandNone
		}
		word = word[:i]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 && slash {
		word = word[:i]
	}

	switch cmd := Command(strings.ToLower(word)); cmd {
	case CommandStart, CommandHelp, CommandForecast:
		return cmd
	}
	if slash {
		return CommandUnknown
	}
	return CommandNone
}
