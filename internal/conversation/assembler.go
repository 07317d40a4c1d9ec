package conversation

import (
	"sort"

	"github.com/chatrelay/chatrelay/internal/platform"
)

// StandardAssembler builds system + chronological history. Only the bot's own
// messages and the triggering author's messages make it into the window.
type StandardAssembler struct {
	SystemPrompt  string
	TriggerPrefix string
	// IncludeTrigger adds the triggering message to the history when the
	// platform fetch did not return it yet.
	IncludeTrigger bool
}

// Assemble builds the final window: system first, then history oldest first.
func (a *StandardAssembler) Assemble(trigger platform.Message, recent []platform.Message, self platform.Author) []Turn {
	history := make([]platform.Message, 0, len(recent)+1)
	history = append(history, recent...)
	if a.IncludeTrigger && !containsID(recent, trigger.ID) {
		history = append(history, trigger)
	}
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].CreatedAt.Equal(history[j].CreatedAt) {
			return history[i].ID < history[j].ID
		}
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})

	turns := make([]Turn, 0, 1+len(history))
	turns = append(turns, Turn{Role: RoleSystem, Content: a.SystemPrompt})
	for _, m := range history {
		if IsCommand(m.Content, a.TriggerPrefix) {
			continue
		}
		switch {
		case self.ID != "" && m.Author.ID == self.ID:
			turns = append(turns, Turn{Role: RoleAssistant, Content: m.Content, Name: SanitizeName(m.Author.Username)})
		case m.Author.ID == trigger.Author.ID:
			turns = append(turns, Turn{Role: RoleUser, Content: m.Content, Name: SanitizeName(trigger.Author.Username)})
		}
	}
	return turns
}

// containsID treats an empty id as present: it cannot be matched.
func containsID(msgs []platform.Message, id string) bool {
	if id == "" {
		return true
	}
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}
