package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want Command
	}{
		{"/start", CommandStart},
		{"start", CommandStart},
		{"  /HELP  ", CommandHelp},
		{"help", CommandHelp},
		{"/forecast", CommandForecast},
		{"/forecast@WxBot", CommandForecast},
		{"/forecast tomorrow", CommandForecast},
		{"forecast", CommandForecast},
		{"/weather", CommandUnknown},
		{"/", CommandUnknown},
		{"hello", CommandNone},
		{"start now", CommandNone},
		{"", CommandNone},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCommand(tt.text), "text %q", tt.text)
	}
}

func TestEvent_Identity(t *testing.T) {
	t.Parallel()

	ev := Event{Platform: PlatformTelegram, ChatID: "100", UserID: "42", Username: "alice"}
	assert.Equal(t, "telegram:42", ev.UserKey())
	assert.Equal(t, "@alice", ev.Requester())

	ev.Username = ""
	assert.Equal(t, "ID:42", ev.Requester())

	assert.Empty(t, Event{Platform: PlatformLine}.UserKey())
}
