package conversation

import (
	"strings"

	"github.com/chatrelay/chatrelay/internal/platform"
)

// DefaultTriggerPrefix marks messages reserved for other bots and commands.
const DefaultTriggerPrefix = "!"

// Accept reports whether an inbound message should be relayed.
func Accept(m platform.Message, channelID, triggerPrefix string) bool {
	if m.Author.Bot {
		return false
	}
	if m.ChannelID != channelID {
		return false
	}
	return !IsCommand(m.Content, triggerPrefix)
}

// IsCommand reports whether content starts with the trigger prefix.
func IsCommand(content, triggerPrefix string) bool {
	return strings.HasPrefix(content, triggerPrefix)
}
